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

import "runtime/debug"

// Version is set at build time:
//
//	go build -ldflags "-X github.com/jeremyhahn/carwatch/pkg/version.Version=1.0.0" ./cmd/carwatch
var Version = "dev"

// Get returns the ldflags version, falling back to the module version
// recorded by `go install` and finally to "dev".
func Get() string {
	if Version != "dev" && Version != "" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return v
		}
	}
	return "dev"
}
