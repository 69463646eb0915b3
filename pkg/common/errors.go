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

package common

import "errors"

var (
	// Configuration errors

	// ErrNotConfigured is returned when a storage backend is not properly configured.
	ErrNotConfigured = errors.New("not configured")

	// ErrPathNotSet is returned when the required path is not set.
	ErrPathNotSet = errors.New("path not set")

	// ErrBucketNotSet is returned when the required bucket is not set.
	ErrBucketNotSet = errors.New("bucket not set")

	// ErrAccountNotSet is returned when required account credentials are not set.
	ErrAccountNotSet = errors.New("accountName, accountKey, or containerName not set")

	// ErrRegionNotSet is returned when the required region is not set.
	ErrRegionNotSet = errors.New("region not set")

	// Storage operation errors

	// ErrStorageRequired is returned when a storage backend is required but not provided.
	ErrStorageRequired = errors.New("storage backend is required")

	// ErrKeyNotFound is returned when a key is not found in storage.
	ErrKeyNotFound = errors.New("key not found")

	// ErrMetadataNotFound is returned when metadata for a key is not found.
	ErrMetadataNotFound = errors.New("metadata not found")
)
