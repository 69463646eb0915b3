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

package factory

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jeremyhahn/carwatch/pkg/common"
	"github.com/jeremyhahn/carwatch/pkg/local"
	"github.com/jeremyhahn/carwatch/pkg/memory"
)

func TestBackendsRegistered(t *testing.T) {
	want := []string{"azure", "bolt", "gcs", "local", "memory", "s3", "sqlite"}
	got := Backends()
	if len(got) < len(want) {
		t.Fatalf("Backends() = %v, want at least %v", got, want)
	}
	for i, name := range want {
		if got[i] != name {
			t.Errorf("Backends()[%d] = %q, want %q", i, got[i], name)
		}
	}
}

func TestNewStorageUnknown(t *testing.T) {
	_, err := NewStorage("ftp", nil)
	if !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("NewStorage(ftp) error = %v, want ErrUnknownBackend", err)
	}
}

func TestNewStorageConfigures(t *testing.T) {
	dir := t.TempDir()
	storage, err := NewStorage("local", map[string]string{"path": dir})
	if err != nil {
		t.Fatalf("NewStorage(local) error = %v", err)
	}
	defer storage.Close()

	l, ok := storage.(*local.Local)
	if !ok {
		t.Fatalf("NewStorage(local) returned %T", storage)
	}
	if l.GetPath() != dir {
		t.Errorf("GetPath() = %q, want %q", l.GetPath(), dir)
	}

	if _, err := NewStorage("local", map[string]string{}); !errors.Is(err, common.ErrPathNotSet) {
		t.Errorf("NewStorage(local) without path error = %v, want ErrPathNotSet", err)
	}
}

func TestNewStorageFileBackends(t *testing.T) {
	for _, backend := range []string{"bolt", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			storage, err := NewStorage(backend, map[string]string{"path": filepath.Join(t.TempDir(), "db")})
			if err != nil {
				t.Fatalf("NewStorage(%s) error = %v", backend, err)
			}
			defer storage.Close()

			ctx := context.Background()
			if err := storage.Put(ctx, "inventory_a.json", bytes.NewBufferString("{}"), nil); err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			objects, err := storage.List(ctx, "inventory_")
			if err != nil || len(objects) != 1 {
				t.Errorf("List() = %v, %v", objects, err)
			}
		})
	}
}

func TestRegisterStorageOverrides(t *testing.T) {
	called := false
	RegisterStorage("test-backend", func(settings map[string]string) (common.Storage, error) {
		called = true
		return memory.New(), nil
	})
	defer func() {
		registryMu.Lock()
		delete(storageRegistry, "test-backend")
		registryMu.Unlock()
	}()

	if _, err := NewStorage("test-backend", nil); err != nil || !called {
		t.Errorf("NewStorage(test-backend) = %v, called = %v", err, called)
	}
}

func TestCloudBackendsValidateSettings(t *testing.T) {
	tests := map[string]error{
		"s3":    common.ErrBucketNotSet,
		"gcs":   common.ErrBucketNotSet,
		"azure": common.ErrAccountNotSet,
	}
	for backend, wantErr := range tests {
		if _, err := NewStorage(backend, map[string]string{}); !errors.Is(err, wantErr) {
			t.Errorf("NewStorage(%s) error = %v, want %v", backend, err, wantErr)
		}
	}
}
