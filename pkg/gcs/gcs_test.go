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

package gcs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/jeremyhahn/carwatch/pkg/common"
)

type fakeClient struct {
	mu      sync.Mutex
	objects map[string]*storage.ObjectAttrs
	data    map[string][]byte
	now     time.Time
	closed  bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		objects: map[string]*storage.ObjectAttrs{},
		data:    map[string][]byte{},
		now:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func (c *fakeClient) Bucket(name string) gcsBucket { return &fakeBucket{c: c} }
func (c *fakeClient) Close() error                 { c.closed = true; return nil }

type fakeBucket struct{ c *fakeClient }

func (b *fakeBucket) Object(name string) gcsObject { return &fakeObject{c: b.c, name: name} }

func (b *fakeBucket) Objects(ctx context.Context, q *storage.Query) gcsIterator {
	b.c.mu.Lock()
	defer b.c.mu.Unlock()
	var names []string
	for name := range b.c.objects {
		if strings.HasPrefix(name, q.Prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	it := &fakeIterator{}
	for _, name := range names {
		attrs := *b.c.objects[name]
		it.items = append(it.items, &attrs)
	}
	return it
}

type fakeIterator struct {
	items []*storage.ObjectAttrs
	err   error
}

func (i *fakeIterator) Next() (*storage.ObjectAttrs, error) {
	if i.err != nil {
		return nil, i.err
	}
	if len(i.items) == 0 {
		return nil, iterator.Done
	}
	next := i.items[0]
	i.items = i.items[1:]
	return next, nil
}

type fakeObject struct {
	c    *fakeClient
	name string
}

type fakeWriter struct {
	bytes.Buffer
	o     *fakeObject
	attrs storage.ObjectAttrs
}

func (w *fakeWriter) Close() error {
	c := w.o.c
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Minute)
	c.data[w.o.name] = w.Bytes()
	c.objects[w.o.name] = &storage.ObjectAttrs{
		Name:        w.o.name,
		ContentType: w.attrs.ContentType,
		Metadata:    w.attrs.Metadata,
		Size:        int64(w.Len()),
		Created:     c.now,
		Updated:     c.now,
	}
	return nil
}

func (o *fakeObject) NewWriter(ctx context.Context, attrs storage.ObjectAttrs) io.WriteCloser {
	return &fakeWriter{o: o, attrs: attrs}
}

func (o *fakeObject) NewReader(ctx context.Context) (io.ReadCloser, error) {
	o.c.mu.Lock()
	defer o.c.mu.Unlock()
	data, ok := o.c.data[o.name]
	if !ok {
		return nil, storage.ErrObjectNotExist
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (o *fakeObject) Attrs(ctx context.Context) (*storage.ObjectAttrs, error) {
	o.c.mu.Lock()
	defer o.c.mu.Unlock()
	attrs, ok := o.c.objects[o.name]
	if !ok {
		return nil, storage.ErrObjectNotExist
	}
	return attrs, nil
}

func newTestGCS(prefix string) (*GCS, *fakeClient) {
	fake := newFakeClient()
	return &GCS{client: fake, bucket: "carwatch", prefix: prefix}, fake
}

func TestConfigure(t *testing.T) {
	if err := New().Configure(map[string]string{}); !errors.Is(err, common.ErrBucketNotSet) {
		t.Errorf("Configure() error = %v, want ErrBucketNotSet", err)
	}

	orig := gcsNewClient
	defer func() { gcsNewClient = orig }()

	var gotOpts int
	gcsNewClient = func(ctx context.Context, opts ...option.ClientOption) (*storage.Client, error) {
		gotOpts = len(opts)
		return nil, errors.New("no credentials")
	}
	err := New().Configure(map[string]string{"bucket": "carwatch", "endpoint": "http://localhost:4443/storage/v1/"})
	if err == nil || err.Error() != "no credentials" {
		t.Errorf("Configure() error = %v, want client error", err)
	}
	if gotOpts != 2 {
		t.Errorf("client options = %d, want endpoint and no-auth", gotOpts)
	}

	g, _ := newTestGCS("")
	if err := g.Configure(map[string]string{"bucket": "other", "prefix": "nl/"}); err != nil {
		t.Errorf("Configure() with existing client error = %v", err)
	}
	if g.bucket != "other" || g.prefix != "nl/" {
		t.Errorf("Configure() did not apply settings: %+v", g)
	}
}

func TestPutGetMetadata(t *testing.T) {
	g, _ := newTestGCS("")
	ctx := context.Background()
	key := "inventory_20260301_101500.json"

	err := g.Put(ctx, key, strings.NewReader(`{"groups":[]}`), &common.Metadata{
		ContentType: "application/json",
		Custom:      map[string]string{"captured_at": "2026-03-01T10:15:00Z"},
	})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	data, err := common.ReadAll(ctx, g, key)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(data) != `{"groups":[]}` {
		t.Errorf("Get() = %q", data)
	}

	meta, err := g.GetMetadata(ctx, key)
	if err != nil {
		t.Fatalf("GetMetadata() error = %v", err)
	}
	if meta.ContentType != "application/json" || meta.Size != 13 || meta.Custom["captured_at"] == "" {
		t.Errorf("metadata = %+v", meta)
	}
	if meta.CreatedAt.IsZero() {
		t.Error("CreatedAt not mapped from ObjectAttrs.Created")
	}
}

func TestNotFound(t *testing.T) {
	g, _ := newTestGCS("")
	ctx := context.Background()

	if _, err := g.Get(ctx, "missing.json"); !errors.Is(err, common.ErrKeyNotFound) {
		t.Errorf("Get() error = %v, want ErrKeyNotFound", err)
	}
	if _, err := g.GetMetadata(ctx, "missing.json"); !errors.Is(err, common.ErrKeyNotFound) {
		t.Errorf("GetMetadata() error = %v, want ErrKeyNotFound", err)
	}
	if exists, err := g.Exists(ctx, "missing.json"); exists || err != nil {
		t.Errorf("Exists() = %v, %v", exists, err)
	}
}

func TestListStripsPrefix(t *testing.T) {
	g, fake := newTestGCS("nl/")
	ctx := context.Background()

	for _, key := range []string{"inventory_2.json", "inventory_1.json", "readme.txt"} {
		if err := g.Put(ctx, key, strings.NewReader("{}"), nil); err != nil {
			t.Fatal(err)
		}
	}
	if _, ok := fake.objects["nl/inventory_1.json"]; !ok {
		t.Fatalf("object not stored under prefix: %v", fake.objects)
	}

	objects, err := g.List(ctx, "inventory_")
	if err != nil {
		t.Fatal(err)
	}
	if len(objects) != 2 || objects[0].Key != "inventory_1.json" || objects[1].Key != "inventory_2.json" {
		t.Errorf("List() = %v", objects)
	}

	if err := g.Close(); err != nil || !fake.closed {
		t.Errorf("Close() = %v, closed = %v", err, fake.closed)
	}
}

func TestUnconfigured(t *testing.T) {
	g := New()
	ctx := context.Background()
	if err := g.Put(ctx, "a.json", strings.NewReader(""), nil); !errors.Is(err, common.ErrNotConfigured) {
		t.Errorf("Put() error = %v", err)
	}
	if _, err := g.List(ctx, ""); !errors.Is(err, common.ErrNotConfigured) {
		t.Errorf("List() error = %v", err)
	}
	if err := g.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
