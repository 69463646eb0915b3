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

package monitor

import (
	"errors"
	"fmt"
)

var (
	// ErrFetch is returned when the catalog cannot be fetched or decoded.
	// Nothing is written.
	ErrFetch = errors.New("fetch failed")

	// ErrPersistence is returned when the snapshot cannot be saved.
	ErrPersistence = errors.New("persistence failed")

	// ErrLoadPrevious is returned when the previous snapshot cannot be read
	// for a reason other than corruption.
	ErrLoadPrevious = errors.New("loading previous snapshot failed")

	// ErrFetcherRequired is returned when no fetcher is configured.
	ErrFetcherRequired = errors.New("fetcher is required")

	// ErrStoreRequired is returned when no snapshot store is configured.
	ErrStoreRequired = errors.New("snapshot store is required")
)

// Stage names the cycle step that failed.
type Stage string

const (
	StageFetch   Stage = "fetch"
	StageSave    Stage = "save"
	StageCompare Stage = "compare"
)

// CycleError records the stage at which a cycle aborted.
type CycleError struct {
	Stage Stage
	Err   error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *CycleError) Unwrap() error {
	return e.Err
}
