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

// Package differ computes the changeset between two catalog snapshots.
//
// Compare is pure: it performs no I/O, never fails and always returns
// key-sorted results so that the same pair of snapshots yields the same
// changeset on every run.
package differ

import (
	"sort"

	"github.com/jeremyhahn/carwatch/pkg/catalog"
)

// Modification records a trimline count change for a key present in both snapshots.
type Modification struct {
	Key    catalog.Key `json:"key"`
	Before int         `json:"before"`
	After  int         `json:"after"`
}

// Changeset is the result of comparing a previous snapshot with a current one.
type Changeset struct {
	Added    []catalog.Entry `json:"added"`
	Removed  []catalog.Entry `json:"removed"`
	Modified []Modification  `json:"modified"`
}

// IsEmpty reports whether the changeset has no entries in any category.
func (c Changeset) IsEmpty() bool {
	return c.Len() == 0
}

// Len returns the total number of changes.
func (c Changeset) Len() int {
	return len(c.Added) + len(c.Removed) + len(c.Modified)
}

// Compare diffs previous against current keyed by make/model. Either
// snapshot may be nil or empty. Keys whose trimline count did not change
// are omitted.
func Compare(previous, current *catalog.Snapshot) Changeset {
	before := previous.Index()
	after := current.Index()

	cs := Changeset{
		Added:    []catalog.Entry{},
		Removed:  []catalog.Entry{},
		Modified: []Modification{},
	}

	for key, entry := range after {
		old, ok := before[key]
		if !ok {
			cs.Added = append(cs.Added, entry)
			continue
		}
		if old.Trimlines != entry.Trimlines {
			cs.Modified = append(cs.Modified, Modification{
				Key:    key,
				Before: old.Trimlines,
				After:  entry.Trimlines,
			})
		}
	}

	for key, entry := range before {
		if _, ok := after[key]; !ok {
			cs.Removed = append(cs.Removed, entry)
		}
	}

	sortEntries(cs.Added)
	sortEntries(cs.Removed)
	sort.Slice(cs.Modified, func(i, j int) bool {
		return cs.Modified[i].Key.Less(cs.Modified[j].Key)
	})

	return cs
}

func sortEntries(entries []catalog.Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key().Less(entries[j].Key())
	})
}
