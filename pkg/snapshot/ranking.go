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

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Ranking decides which snapshot counts as the most recent.
type Ranking int

const (
	// RankByCreation orders by the backend's creation metadata. A file
	// copied into the store keeps whatever timestamp the copy produced.
	RankByCreation Ranking = iota

	// RankByName orders by the capture time embedded in the key, falling
	// back to creation metadata for ties and unparseable keys.
	RankByName
)

// String returns the configuration name of the ranking.
func (r Ranking) String() string {
	switch r {
	case RankByCreation:
		return "creation"
	case RankByName:
		return "name"
	default:
		return fmt.Sprintf("Ranking(%d)", int(r))
	}
}

// ParseRanking converts a configuration value to a Ranking.
func ParseRanking(s string) (Ranking, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "creation", "ctime":
		return RankByCreation, nil
	case "name", "timestamp":
		return RankByName, nil
	default:
		return RankByCreation, fmt.Errorf("%w: %q", ErrInvalidRanking, s)
	}
}

// rank sorts infos newest first according to r.
func (r Ranking) rank(infos []Info, loc *time.Location) {
	newer := func(a, b Info) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	}

	if r == RankByName {
		captured := make(map[string]time.Time, len(infos))
		for _, info := range infos {
			if t, err := ParseKey(info.ID, loc); err == nil {
				captured[info.ID] = t
			}
		}
		byCreation := newer
		newer = func(a, b Info) bool {
			ta, okA := captured[a.ID]
			tb, okB := captured[b.ID]
			switch {
			case okA && !okB:
				return true
			case !okA && okB:
				return false
			case okA && okB && !ta.Equal(tb):
				return ta.After(tb)
			}
			return byCreation(a, b)
		}
	}

	sort.SliceStable(infos, func(i, j int) bool {
		return newer(infos[i], infos[j])
	})
}
