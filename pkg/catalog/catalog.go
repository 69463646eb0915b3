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

// Package catalog models the vehicle inventory returned by the upstream
// groups API: one Entry per make/model pair with its trimline count.
package catalog

import (
	"encoding/json"
	"fmt"
	"time"
)

// Key identifies an Entry within a snapshot.
type Key struct {
	Make  string `json:"make"`
	Model string `json:"model"`
}

// String renders the key the way it appears in notifications.
func (k Key) String() string {
	return k.Make + " " + k.Model
}

// Less orders keys by make, then model.
func (k Key) Less(other Key) bool {
	if k.Make != other.Make {
		return k.Make < other.Make
	}
	return k.Model < other.Model
}

// Entry is one make/model group of the catalog.
type Entry struct {
	Make      string `json:"make"`
	Model     string `json:"model"`
	Trimlines int    `json:"numberOfTrimlines"`
}

// Key returns the identity of the entry.
func (e Entry) Key() Key {
	return Key{Make: e.Make, Model: e.Model}
}

// Snapshot is the catalog as captured at one point in time. A persisted
// snapshot is never mutated.
type Snapshot struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Entries   []Entry   `json:"entries"`
}

// Len returns the number of entries. A nil snapshot has none.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Entries)
}

// Index maps every key to its entry. When the upstream payload repeats a
// make/model pair the last occurrence wins.
func (s *Snapshot) Index() map[Key]Entry {
	if s == nil {
		return map[Key]Entry{}
	}
	index := make(map[Key]Entry, len(s.Entries))
	for _, entry := range s.Entries {
		index[entry.Key()] = entry
	}
	return index
}

// payload is the subset of the upstream response the diff relies on.
// Groups is a pointer so a missing or null field can be told apart from
// an empty list.
type payload struct {
	Groups *[]Entry `json:"groups"`
}

// Parse extracts the catalog entries from a raw upstream payload. Fields
// other than make, model and numberOfTrimlines are ignored. The payload
// must be an object with a groups list; {"groups":[]} is an empty catalog.
func Parse(raw []byte) ([]Entry, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if p.Groups == nil {
		return nil, fmt.Errorf("%w: no groups list", ErrInvalidPayload)
	}
	groups := *p.Groups
	for i, entry := range groups {
		if entry.Trimlines < 0 {
			return nil, fmt.Errorf("%w: group %d (%s) has negative numberOfTrimlines %d",
				ErrInvalidPayload, i, entry.Key(), entry.Trimlines)
		}
	}
	if groups == nil {
		return []Entry{}, nil
	}
	return groups, nil
}

// NewSnapshot parses raw and wraps the result in a Snapshot.
func NewSnapshot(id string, createdAt time.Time, raw []byte) (*Snapshot, error) {
	entries, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return &Snapshot{ID: id, CreatedAt: createdAt, Entries: entries}, nil
}
