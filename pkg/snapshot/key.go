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
	"strings"
	"time"
)

const (
	// KeyPrefix starts every snapshot key.
	KeyPrefix = "inventory_"

	// KeySuffix ends every snapshot key.
	KeySuffix = ".json"

	// TimestampLayout is the capture-time portion of a key, second precision.
	TimestampLayout = "20060102_150405"
)

// KeyFor returns the storage key for a snapshot captured at t. t is used
// as given; callers convert to the desired location first.
func KeyFor(t time.Time) string {
	return KeyPrefix + t.Format(TimestampLayout) + KeySuffix
}

// IsSnapshotKey reports whether key follows the snapshot naming scheme.
// The part between prefix and suffix may not contain dots or slashes, which
// keeps sidecar files such as "<key>.metadata.json" out.
func IsSnapshotKey(key string) bool {
	if !strings.HasPrefix(key, KeyPrefix) || !strings.HasSuffix(key, KeySuffix) ||
		len(key) <= len(KeyPrefix)+len(KeySuffix) {
		return false
	}
	stamp := key[len(KeyPrefix) : len(key)-len(KeySuffix)]
	return !strings.ContainsAny(stamp, "./")
}

// ParseKey extracts the capture time embedded in a snapshot key, in loc.
func ParseKey(key string, loc *time.Location) (time.Time, error) {
	if !IsSnapshotKey(key) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidID, key)
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(key, KeyPrefix), KeySuffix)
	t, err := time.ParseInLocation(TimestampLayout, stamp, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrInvalidID, key, err)
	}
	return t, nil
}
