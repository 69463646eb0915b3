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

// Package memory provides an in-memory implementation of the storage interface.
// This is useful for testing, dry runs, and scenarios where persistence is not required.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jeremyhahn/carwatch/pkg/common"
)

// object represents a stored object with its data and metadata.
type object struct {
	data     []byte
	metadata *common.Metadata
}

// Memory is a storage backend that stores objects in memory.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]*object
	now     func() time.Time
}

// Option configures a Memory backend.
type Option func(*Memory)

// WithClock overrides the clock used to stamp CreatedAt and LastModified.
func WithClock(now func() time.Time) Option {
	return func(m *Memory) {
		m.now = now
	}
}

// New creates a new Memory storage backend.
func New(opts ...Option) common.Storage {
	m := &Memory{
		objects: make(map[string]*object),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Configure sets up the backend with the necessary settings.
// The memory backend has no required settings.
func (m *Memory) Configure(settings map[string]string) error {
	return nil
}

// Put stores an object with associated metadata.
func (m *Memory) Put(ctx context.Context, key string, data io.Reader, metadata *common.Metadata) error {
	if err := common.ValidateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dataBytes, err := io.ReadAll(data)
	if err != nil {
		return err
	}

	meta := metadata.Clone()
	if meta == nil {
		meta = &common.Metadata{}
	}
	now := m.now()
	meta.Size = int64(len(dataBytes))
	meta.CreatedAt = now
	meta.LastModified = now
	meta.ETag = fmt.Sprintf("%d-%d", now.UnixNano(), meta.Size)

	m.mu.Lock()
	m.objects[key] = &object{
		data:     dataBytes,
		metadata: meta,
	}
	m.mu.Unlock()

	return nil
}

// Get retrieves an object from the backend.
func (m *Memory) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := common.ValidateKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	obj, exists := m.objects[key]
	m.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", common.ErrKeyNotFound, key)
	}

	// Return a copy of the data to prevent mutation
	dataCopy := make([]byte, len(obj.data))
	copy(dataCopy, obj.data)

	return io.NopCloser(bytes.NewReader(dataCopy)), nil
}

// GetMetadata retrieves only the metadata for an object.
func (m *Memory) GetMetadata(ctx context.Context, key string) (*common.Metadata, error) {
	if err := common.ValidateKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, exists := m.objects[key]
	if !exists {
		return nil, fmt.Errorf("%w: %s", common.ErrKeyNotFound, key)
	}
	return obj.metadata.Clone(), nil
}

// SetCreatedAt backdates an object's creation time, the way a file copied
// into a directory keeps its original timestamp.
func (m *Memory) SetCreatedAt(key string, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, exists := m.objects[key]
	if !exists {
		return fmt.Errorf("%w: %s", common.ErrKeyNotFound, key)
	}
	obj.metadata.CreatedAt = t
	obj.metadata.LastModified = t
	return nil
}

// Exists checks if an object exists in the backend.
func (m *Memory) Exists(ctx context.Context, key string) (bool, error) {
	if err := common.ValidateKey(key); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.RLock()
	_, exists := m.objects[key]
	m.mu.RUnlock()

	return exists, nil
}

// List returns the objects whose keys start with prefix, sorted by key.
func (m *Memory) List(ctx context.Context, prefix string) ([]*common.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	objects := make([]*common.ObjectInfo, 0, len(m.objects))
	for key, obj := range m.objects {
		if strings.HasPrefix(key, prefix) {
			objects = append(objects, &common.ObjectInfo{Key: key, Metadata: obj.metadata.Clone()})
		}
	}
	m.mu.RUnlock()

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].Key < objects[j].Key
	})
	return objects, nil
}

// Close is a no-op for memory storage.
func (m *Memory) Close() error {
	return nil
}

// Len returns the number of stored objects.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
