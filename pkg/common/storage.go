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

import (
	"context"
	"io"
)

// Storage is the object store the snapshot store is built on. Backends are
// append-only from carwatch's point of view: nothing in the module deletes
// an object, so the interface does not offer it.
type Storage interface {
	// Configure sets up the backend with the necessary credentials and settings.
	Configure(settings map[string]string) error

	// Put stores an object, replacing any existing object with the same key.
	Put(ctx context.Context, key string, data io.Reader, metadata *Metadata) error

	// Get retrieves an object.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// GetMetadata retrieves only the metadata for an object.
	GetMetadata(ctx context.Context, key string) (*Metadata, error)

	// Exists checks if an object exists.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns every object whose key starts with prefix, with metadata.
	List(ctx context.Context, prefix string) ([]*ObjectInfo, error)

	// Close releases any handles held by the backend.
	Close() error
}

// ReadAll reads an object fully.
func ReadAll(ctx context.Context, s Storage, key string) ([]byte, error) {
	rc, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}
