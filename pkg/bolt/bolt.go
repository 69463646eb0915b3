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

// Package bolt stores snapshots in a single bbolt database file. Object data
// and JSON-encoded metadata live in two buckets keyed by object key.
package bolt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/jeremyhahn/carwatch/pkg/common"
)

const (
	// DefaultFileName is used when the path setting names a directory.
	DefaultFileName = "snapshots.db"

	dataBucket     = "objects"
	metadataBucket = "metadata"
)

// ErrStoreClosed is returned when the database has been closed.
var ErrStoreClosed = errors.New("bolt store is closed")

// Bolt is a storage backend on top of a bbolt database.
type Bolt struct {
	mu     sync.RWMutex
	db     *bolt.DB
	path   string
	closed bool
	now    func() time.Time
}

// New creates a new, unconfigured Bolt backend.
func New() common.Storage {
	return &Bolt{now: time.Now}
}

// Configure opens the database.
// Settings:
//   - path: database file, or a directory that will hold snapshots.db (required)
func (b *Bolt) Configure(settings map[string]string) error {
	path := strings.TrimSpace(settings["path"])
	if path == "" {
		return common.ErrPathNotSet
	}
	if info, err := os.Stat(path); (err == nil && info.IsDir()) || filepath.Ext(path) == "" {
		path = filepath.Join(path, DefaultFileName)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("ensure bolt dir: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("open bolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{dataBucket, metadataBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db != nil {
		_ = b.db.Close()
	}
	b.db = db
	b.path = path
	b.closed = false
	return nil
}

// Path returns the database file path.
func (b *Bolt) Path() string {
	return b.path
}

// Put stores an object and its metadata in one transaction.
func (b *Bolt) Put(ctx context.Context, key string, data io.Reader, metadata *common.Metadata) error {
	if err := common.ValidateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := io.ReadAll(data)
	if err != nil {
		return err
	}

	meta := metadata.Clone()
	if meta == nil {
		meta = &common.Metadata{}
	}
	if meta.Custom != nil {
		if err := common.ValidateMetadata(meta.Custom); err != nil {
			return err
		}
	}
	now := b.now()
	meta.Size = int64(len(payload))
	meta.CreatedAt = now
	meta.LastModified = now
	meta.ETag = fmt.Sprintf("%d-%d", now.UnixNano(), meta.Size)

	encoded, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	return b.update(func(tx *bolt.Tx) error {
		if err := tx.Bucket([]byte(dataBucket)).Put([]byte(key), payload); err != nil {
			return fmt.Errorf("write object %s: %w", key, err)
		}
		if err := tx.Bucket([]byte(metadataBucket)).Put([]byte(key), encoded); err != nil {
			return fmt.Errorf("write metadata %s: %w", key, err)
		}
		return nil
	})
}

// Get retrieves an object.
func (b *Bolt) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := common.ValidateKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var payload []byte
	err := b.view(func(tx *bolt.Tx) error {
		value := tx.Bucket([]byte(dataBucket)).Get([]byte(key))
		if value == nil {
			return fmt.Errorf("%w: %s", common.ErrKeyNotFound, key)
		}
		// Values are only valid for the life of the transaction.
		payload = append([]byte(nil), value...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(payload)), nil
}

// GetMetadata retrieves the metadata for an object.
func (b *Bolt) GetMetadata(ctx context.Context, key string) (*common.Metadata, error) {
	if err := common.ValidateKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var meta *common.Metadata
	err := b.view(func(tx *bolt.Tx) error {
		value := tx.Bucket([]byte(metadataBucket)).Get([]byte(key))
		if value == nil {
			return fmt.Errorf("%w: %s", common.ErrKeyNotFound, key)
		}
		var err error
		meta, err = decodeMetadata(value)
		return err
	})
	return meta, err
}

// Exists checks if an object exists.
func (b *Bolt) Exists(ctx context.Context, key string) (bool, error) {
	if err := common.ValidateKey(key); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var exists bool
	err := b.view(func(tx *bolt.Tx) error {
		exists = tx.Bucket([]byte(dataBucket)).Get([]byte(key)) != nil
		return nil
	})
	return exists, err
}

// List returns the objects whose keys start with prefix, in key order.
func (b *Bolt) List(ctx context.Context, prefix string) ([]*common.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	objects := []*common.ObjectInfo{}
	err := b.view(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(metadataBucket)).Cursor()
		p := []byte(prefix)
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			meta, err := decodeMetadata(v)
			if err != nil {
				return err
			}
			objects = append(objects, &common.ObjectInfo{Key: string(k), Metadata: meta})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return objects, nil
}

// Close closes the database.
func (b *Bolt) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || b.db == nil {
		b.closed = true
		return nil
	}
	b.closed = true
	return b.db.Close()
}

func (b *Bolt) view(fn func(tx *bolt.Tx) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.db == nil {
		return common.ErrNotConfigured
	}
	if b.closed {
		return ErrStoreClosed
	}
	return b.db.View(fn)
}

func (b *Bolt) update(fn func(tx *bolt.Tx) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.db == nil {
		return common.ErrNotConfigured
	}
	if b.closed {
		return ErrStoreClosed
	}
	return b.db.Update(fn)
}

func decodeMetadata(value []byte) (*common.Metadata, error) {
	var meta common.Metadata
	if err := json.Unmarshal(value, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &meta, nil
}
