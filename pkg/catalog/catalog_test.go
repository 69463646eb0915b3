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

package catalog

import (
	"errors"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []Entry
		wantErr bool
	}{
		{
			name: "groups",
			raw: `{"groups":[{"make":"Toyota","model":"Corolla","numberOfTrimlines":3,"ranking":1},
				{"make":"Honda","model":"Civic","numberOfTrimlines":2}],"total":2}`,
			want: []Entry{{"Toyota", "Corolla", 3}, {"Honda", "Civic", 2}},
		},
		{name: "missing groups", raw: `{"total":0}`, wantErr: true},
		{name: "empty object", raw: `{}`, wantErr: true},
		{name: "error body", raw: `{"error":"maintenance"}`, wantErr: true},
		{name: "null groups", raw: `{"groups":null}`, wantErr: true},
		{name: "empty groups", raw: `{"groups":[]}`, want: []Entry{}},
		{name: "null", raw: `null`, wantErr: true},
		{name: "array", raw: `[1,2]`, wantErr: true},
		{name: "not json", raw: `<html>`, wantErr: true},
		{name: "wrong type", raw: `{"groups":[{"make":"Kia","model":"Niro","numberOfTrimlines":"4"}]}`, wantErr: true},
		{name: "negative", raw: `{"groups":[{"make":"Kia","model":"Niro","numberOfTrimlines":-1}]}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.raw))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPayload) {
					t.Fatalf("Parse() error = %v, want ErrInvalidPayload", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Parse() returned %d entries, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("entry %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSnapshotIndexLastWriteWins(t *testing.T) {
	s := &Snapshot{Entries: []Entry{
		{"Toyota", "Corolla", 3},
		{"Honda", "Civic", 2},
		{"Toyota", "Corolla", 7},
	}}

	index := s.Index()
	if len(index) != 2 {
		t.Fatalf("Index() has %d keys, want 2", len(index))
	}
	if got := index[Key{"Toyota", "Corolla"}].Trimlines; got != 7 {
		t.Errorf("duplicate key resolved to %d trimlines, want 7 (last entry)", got)
	}
}

func TestNilSnapshot(t *testing.T) {
	var s *Snapshot
	if s.Len() != 0 {
		t.Errorf("nil snapshot Len() = %d", s.Len())
	}
	if len(s.Index()) != 0 {
		t.Errorf("nil snapshot Index() not empty")
	}
}

func TestKeyOrdering(t *testing.T) {
	a := Key{"Audi", "A4"}
	b := Key{"Audi", "Q5"}
	c := Key{"BMW", "i4"}

	if !a.Less(b) || !b.Less(c) || !a.Less(c) {
		t.Error("keys should order by make then model")
	}
	if c.Less(a) || a.Less(a) {
		t.Error("Less must be strict")
	}
	if got := a.String(); got != "Audi A4" {
		t.Errorf("String() = %q", got)
	}
}

func TestNewSnapshot(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s, err := NewSnapshot("inventory_20260301_100000.json", at, []byte(`{"groups":[{"make":"Kia","model":"EV6","numberOfTrimlines":1}]}`))
	if err != nil {
		t.Fatalf("NewSnapshot() error: %v", err)
	}
	if s.ID != "inventory_20260301_100000.json" || !s.CreatedAt.Equal(at) || s.Len() != 1 {
		t.Errorf("unexpected snapshot %+v", s)
	}
}
