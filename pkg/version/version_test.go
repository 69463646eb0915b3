// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of carwatch.
//
// carwatch is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package version

import (
	"strings"
	"testing"
)

func TestGetUsesLinkerVersion(t *testing.T) {
	saved := Version
	t.Cleanup(func() { Version = saved })

	Version = "1.4.2"
	if got := Get(); got != "1.4.2" {
		t.Errorf("Get() = %q, want 1.4.2", got)
	}
}

func TestGetFallback(t *testing.T) {
	saved := Version
	t.Cleanup(func() { Version = saved })

	for _, v := range []string{"dev", ""} {
		Version = v
		got := Get()
		if got == "" {
			t.Errorf("Get() with Version=%q returned empty string", v)
		}
		if got != strings.TrimSpace(got) {
			t.Errorf("Get() returned untrimmed version: %q", got)
		}
	}
}

func TestGetConsistency(t *testing.T) {
	first := Get()
	for i := 0; i < 10; i++ {
		if got := Get(); got != first {
			t.Errorf("call %d: got %q, want %q", i, got, first)
		}
	}
}
