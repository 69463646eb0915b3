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

package local

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jeremyhahn/carwatch/pkg/common"
)

func newTestStorage(t *testing.T) *Local {
	t.Helper()
	storage := New().(*Local)
	if err := storage.Configure(map[string]string{"path": t.TempDir()}); err != nil {
		t.Fatalf("failed to configure storage: %v", err)
	}
	return storage
}

func TestLocal_Configure(t *testing.T) {
	storage := New()
	if err := storage.Configure(map[string]string{}); !errors.Is(err, common.ErrPathNotSet) {
		t.Errorf("Configure() without path error = %v, want ErrPathNotSet", err)
	}

	dir := filepath.Join(t.TempDir(), "nested", "snapshots")
	if err := storage.Configure(map[string]string{"path": dir}); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("Configure() did not create %s: %v", dir, err)
	}
	if got := storage.(*Local).GetPath(); got != dir {
		t.Errorf("GetPath() = %q, want %q", got, dir)
	}
}

func TestLocal_PutAndGet(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()
	key := "inventory_20260301_101500.json"
	payload := `{"groups":[]}`

	err := storage.Put(ctx, key, bytes.NewBufferString(payload), &common.Metadata{
		ContentType: "application/json",
		Custom:      map[string]string{"captured_at": "2026-03-01T10:15:00Z"},
	})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	data, err := common.ReadAll(ctx, storage, key)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(data) != payload {
		t.Errorf("Get() = %q, want %q", data, payload)
	}

	meta, err := storage.GetMetadata(ctx, key)
	if err != nil {
		t.Fatalf("GetMetadata() error = %v", err)
	}
	if meta.ContentType != "application/json" {
		t.Errorf("ContentType = %q", meta.ContentType)
	}
	if meta.Size != int64(len(payload)) {
		t.Errorf("Size = %d, want %d", meta.Size, len(payload))
	}
	if meta.Custom["captured_at"] != "2026-03-01T10:15:00Z" {
		t.Errorf("Custom = %v", meta.Custom)
	}
	if meta.CreatedAt.IsZero() {
		t.Error("CreatedAt not recorded")
	}
}

func TestLocal_PutDoesNotMutateCallerMetadata(t *testing.T) {
	storage := newTestStorage(t)
	meta := &common.Metadata{ContentType: "application/json"}
	if err := storage.Put(context.Background(), "a.json", bytes.NewBufferString("{}"), meta); err != nil {
		t.Fatal(err)
	}
	if meta.Size != 0 || !meta.CreatedAt.IsZero() {
		t.Errorf("caller metadata mutated: %+v", meta)
	}
}

func TestLocal_Overwrite(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()
	key := "inventory_20260301_101500.json"

	for _, body := range []string{"first", "second"} {
		if err := storage.Put(ctx, key, bytes.NewBufferString(body), nil); err != nil {
			t.Fatal(err)
		}
	}
	data, err := common.ReadAll(ctx, storage, key)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "second" {
		t.Errorf("Get() = %q, want second", data)
	}
}

func TestLocal_GetNotFound(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	if _, err := storage.Get(ctx, "missing.json"); !errors.Is(err, common.ErrKeyNotFound) {
		t.Errorf("Get() error = %v, want ErrKeyNotFound", err)
	}
	if _, err := storage.GetMetadata(ctx, "missing.json"); !errors.Is(err, common.ErrKeyNotFound) {
		t.Errorf("GetMetadata() error = %v, want ErrKeyNotFound", err)
	}
	exists, err := storage.Exists(ctx, "missing.json")
	if err != nil || exists {
		t.Errorf("Exists() = %v, %v; want false, nil", exists, err)
	}
}

func TestLocal_InvalidKeys(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	for _, key := range []string{"", "../escape.json", "/abs.json"} {
		if err := storage.Put(ctx, key, bytes.NewBufferString("x"), nil); err == nil {
			t.Errorf("Put(%q) expected error", key)
		}
		if _, err := storage.Get(ctx, key); err == nil {
			t.Errorf("Get(%q) expected error", key)
		}
	}
}

func TestLocal_List(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	for _, key := range []string{
		"inventory_20260301_101500.json",
		"inventory_20260302_101500.json",
		"notes.txt",
	} {
		if err := storage.Put(ctx, key, bytes.NewBufferString("{}"), nil); err != nil {
			t.Fatal(err)
		}
	}

	objects, err := storage.List(ctx, "inventory_")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(objects) != 2 {
		t.Fatalf("List() returned %d objects, want 2", len(objects))
	}
	for _, obj := range objects {
		if obj.Metadata == nil || obj.Metadata.Created().IsZero() {
			t.Errorf("object %s missing creation time", obj.Key)
		}
	}

	all, err := storage.List(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("List(\"\") returned %d objects, want 3 (sidecars excluded)", len(all))
	}
}

func TestLocal_ListEmptyDirectory(t *testing.T) {
	objects, err := newTestStorage(t).List(context.Background(), "inventory_")
	if err != nil {
		t.Fatal(err)
	}
	if objects == nil || len(objects) != 0 {
		t.Errorf("List() = %v, want empty non-nil slice", objects)
	}
}

func TestLocal_ManuallyCopiedFileUsesModTime(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()
	key := "inventory_20260305_080000.json"
	path := filepath.Join(storage.GetPath(), key)

	if err := os.WriteFile(path, []byte("{}"), 0600); err != nil {
		t.Fatal(err)
	}
	stale := time.Date(2025, 12, 24, 9, 0, 0, 0, time.UTC)
	if err := os.Chtimes(path, stale, stale); err != nil {
		t.Fatal(err)
	}

	meta, err := storage.GetMetadata(ctx, key)
	if err != nil {
		t.Fatalf("GetMetadata() error = %v", err)
	}
	if !meta.Created().Equal(stale) {
		t.Errorf("Created() = %v, want %v", meta.Created(), stale)
	}
}

func TestLocal_InjectedClock(t *testing.T) {
	storage := newTestStorage(t)
	fixed := time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC)
	storage.now = func() time.Time { return fixed }

	if err := storage.Put(context.Background(), "a.json", bytes.NewBufferString("{}"), nil); err != nil {
		t.Fatal(err)
	}
	meta, err := storage.GetMetadata(context.Background(), "a.json")
	if err != nil {
		t.Fatal(err)
	}
	if !meta.CreatedAt.Equal(fixed) {
		t.Errorf("CreatedAt = %v, want %v", meta.CreatedAt, fixed)
	}
}

func TestLocal_ContextCancelled(t *testing.T) {
	storage := newTestStorage(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := storage.Put(ctx, "a.json", bytes.NewBufferString("{}"), nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Put() error = %v, want context.Canceled", err)
	}
	if _, err := storage.Get(ctx, "a.json"); !errors.Is(err, context.Canceled) {
		t.Errorf("Get() error = %v, want context.Canceled", err)
	}
}

func TestLocal_NotConfigured(t *testing.T) {
	storage := New()
	if err := storage.Put(context.Background(), "a.json", io.NopCloser(bytes.NewBufferString("")), nil); !errors.Is(err, common.ErrNotConfigured) {
		t.Errorf("Put() error = %v, want ErrNotConfigured", err)
	}
	if _, err := storage.List(context.Background(), ""); !errors.Is(err, common.ErrNotConfigured) {
		t.Errorf("List() error = %v, want ErrNotConfigured", err)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{
		512:         "512 B",
		2048:        "2.0 KB",
		5 * 1 << 20: "5.0 MB",
	}
	for in, want := range tests {
		if got := formatBytes(in); got != want {
			t.Errorf("formatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}
