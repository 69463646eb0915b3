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
	"time"
)

// Metadata holds backend-level information about a stored object.
type Metadata struct {
	// ContentType is the MIME type of the object (e.g., "application/json")
	ContentType string `json:"content_type,omitempty"`

	// Size is the size of the object in bytes
	Size int64 `json:"size"`

	// CreatedAt is when the backend created the current version of the
	// object. Backends without a separate creation time report LastModified.
	CreatedAt time.Time `json:"created_at"`

	// LastModified is the timestamp when the object was last modified
	LastModified time.Time `json:"last_modified"`

	// ETag is the entity tag for the object
	ETag string `json:"etag,omitempty"`

	// Custom is a map of custom metadata key-value pairs
	Custom map[string]string `json:"custom,omitempty"`
}

// Created returns CreatedAt, falling back to LastModified when the backend
// did not record a creation time.
func (m *Metadata) Created() time.Time {
	if m == nil {
		return time.Time{}
	}
	if !m.CreatedAt.IsZero() {
		return m.CreatedAt
	}
	return m.LastModified
}

// Clone returns a deep copy of the metadata.
func (m *Metadata) Clone() *Metadata {
	if m == nil {
		return nil
	}
	c := *m
	if m.Custom != nil {
		c.Custom = make(map[string]string, len(m.Custom))
		for k, v := range m.Custom {
			c.Custom[k] = v
		}
	}
	return &c
}

// ObjectInfo pairs a key with its metadata.
type ObjectInfo struct {
	// Key is the object's storage key
	Key string `json:"key"`

	// Metadata contains the object's metadata
	Metadata *Metadata `json:"metadata,omitempty"`
}
