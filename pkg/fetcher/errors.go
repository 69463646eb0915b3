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

package fetcher

import (
	"errors"
	"fmt"
)

var (
	// ErrRequest is returned when the inventory API cannot be reached.
	ErrRequest = errors.New("inventory request failed")

	// ErrStatus is returned when the inventory API answers with a non-2xx status.
	ErrStatus = errors.New("unexpected inventory response status")

	// ErrResponseTooLarge is returned when a payload exceeds MaxResponseSize.
	ErrResponseTooLarge = errors.New("inventory response too large")

	// ErrURLRequired is returned when no inventory URL is configured.
	ErrURLRequired = errors.New("inventory url is required")
)

// StatusError carries the status code of a rejected response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%v: %d", ErrStatus, e.Code)
	}
	return fmt.Sprintf("%v: %d: %s", ErrStatus, e.Code, e.Body)
}

// Unwrap allows errors.Is(err, ErrStatus).
func (e *StatusError) Unwrap() error {
	return ErrStatus
}

// Temporary reports whether retrying the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code == 429 || e.Code >= 500
}
