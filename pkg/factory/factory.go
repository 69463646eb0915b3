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

// Package factory maps backend names to storage constructors. Backends
// register themselves from init functions in this package.
package factory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/jeremyhahn/carwatch/pkg/common"
)

// StorageCreator is a function that creates a configured storage backend.
type StorageCreator func(settings map[string]string) (common.Storage, error)

var (
	registryMu      sync.RWMutex
	storageRegistry = make(map[string]StorageCreator)
)

// RegisterStorage registers a storage backend creator.
func RegisterStorage(backendType string, creator StorageCreator) {
	registryMu.Lock()
	defer registryMu.Unlock()
	storageRegistry[backendType] = creator
}

// NewStorage creates a new storage backend based on the given type.
func NewStorage(backendType string, settings map[string]string) (common.Storage, error) {
	registryMu.RLock()
	creator, exists := storageRegistry[backendType]
	registryMu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backendType)
	}
	return creator(settings)
}

// Backends returns the registered backend names in sorted order.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(storageRegistry))
	for name := range storageRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// configured returns a creator that builds a backend with newFn and applies
// the settings.
func configured(newFn func() common.Storage) StorageCreator {
	return func(settings map[string]string) (common.Storage, error) {
		storage := newFn()
		if err := storage.Configure(settings); err != nil {
			return nil, err
		}
		return storage, nil
	}
}
