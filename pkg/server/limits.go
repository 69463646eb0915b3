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

package server

import "time"

// Server-wide limits and timeouts shared by the API surfaces.
const (
	// MaxListLimit caps the number of snapshots returned by a single list request
	MaxListLimit = 1000

	// MaxRequestSize is the largest request body accepted (1 MB)
	MaxRequestSize = 1 << 20

	// MaxSnapshotIDLength bounds snapshot ids accepted in paths and queries
	MaxSnapshotIDLength = 255

	// ReadTimeout bounds reading a full request
	ReadTimeout = 30 * time.Second

	// WriteTimeout bounds writing a response. An on-demand cycle fetches,
	// stores and notifies before responding.
	WriteTimeout = 5 * time.Minute

	// IdleTimeout closes idle keep-alive connections
	IdleTimeout = 120 * time.Second

	// ShutdownTimeout is how long in-flight requests get to finish
	ShutdownTimeout = 10 * time.Second
)
