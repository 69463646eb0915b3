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

package snapshot

import "errors"

var (
	// ErrCorruptSnapshot is returned when a stored snapshot cannot be parsed.
	ErrCorruptSnapshot = errors.New("corrupt snapshot")

	// ErrInvalidID is returned for identifiers that do not name a snapshot.
	ErrInvalidID = errors.New("invalid snapshot id")

	// ErrNotEnoughSnapshots is returned when a comparison needs more
	// snapshots than the store holds.
	ErrNotEnoughSnapshots = errors.New("not enough snapshots to compare")

	// ErrInvalidRanking is returned for an unknown ranking setting.
	ErrInvalidRanking = errors.New("invalid ranking")
)
