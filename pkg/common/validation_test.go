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

package common_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jeremyhahn/carwatch/pkg/common"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
		errMsg  string
	}{
		{name: "snapshot key", key: "inventory_20260301_101500.json"},
		{name: "nested key", key: "nl/inventory_20260301_101500.json"},
		{name: "dotted name", key: "a..b.json"},
		{name: "empty key", key: "", wantErr: true, errMsg: "key cannot be empty"},
		{name: "traversal", key: "../etc/passwd", wantErr: true, errMsg: "path traversal"},
		{name: "traversal in middle", key: "a/../../b", wantErr: true, errMsg: "path traversal"},
		{name: "absolute", key: "/etc/passwd", wantErr: true, errMsg: "absolute path"},
		{name: "windows absolute", key: `C:file`, wantErr: true, errMsg: "absolute path"},
		{name: "backslash", key: `a\b`, wantErr: true, errMsg: "backslashes"},
		{name: "double slash", key: "a//b", wantErr: true, errMsg: "//"},
		{name: "null byte", key: "a\x00b", wantErr: true, errMsg: "control characters"},
		{name: "newline", key: "a\nb", wantErr: true, errMsg: "control characters"},
		{name: "too long", key: strings.Repeat("a", common.MaxKeyLength+1), wantErr: true, errMsg: "exceeds maximum"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := common.ValidateKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("ValidateKey(%q) error = %q, want substring %q", tt.key, err, tt.errMsg)
			}
		})
	}
}

func TestValidateMetadata(t *testing.T) {
	if err := common.ValidateMetadata(map[string]string{"captured_at": "2026-03-01T10:15:00Z"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := common.ValidateMetadata(map[string]string{"": "x"}); err == nil {
		t.Error("expected error for empty key")
	}
	if err := common.ValidateMetadata(map[string]string{"k": strings.Repeat("v", common.MaxMetadataValueLength+1)}); err == nil {
		t.Error("expected error for oversized value")
	}
	many := make(map[string]string)
	for i := 0; i <= common.MaxMetadataEntries; i++ {
		many[fmt.Sprintf("k%d", i)] = "v"
	}
	if err := common.ValidateMetadata(many); err == nil {
		t.Error("expected error for too many entries")
	}
}

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("%w: inventory_x.json", common.ErrKeyNotFound), "object not found"},
		{errors.New("open /var/lib/carwatch/x: permission denied"), "access denied"},
		{errors.New("stat /var/lib/carwatch/x: input/output error"), "internal storage error"},
		{errors.New("bucket not set"), "bucket not set"},
	}
	for _, tt := range tests {
		if got := common.SanitizeErrorMessage(tt.err); got != tt.want {
			t.Errorf("SanitizeErrorMessage(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestMetadataCreated(t *testing.T) {
	modified := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	created := modified.Add(-time.Hour)

	var nilMeta *common.Metadata
	if !nilMeta.Created().IsZero() {
		t.Error("nil metadata should report zero creation time")
	}
	m := &common.Metadata{LastModified: modified}
	if !m.Created().Equal(modified) {
		t.Errorf("Created() = %v, want LastModified fallback", m.Created())
	}
	m.CreatedAt = created
	if !m.Created().Equal(created) {
		t.Errorf("Created() = %v, want %v", m.Created(), created)
	}

	m.Custom = map[string]string{"a": "b"}
	clone := m.Clone()
	clone.Custom["a"] = "c"
	if m.Custom["a"] != "b" {
		t.Error("Clone() must deep-copy custom metadata")
	}
}
