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

// Package sqlite stores snapshots in a SQLite database using the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jeremyhahn/carwatch/pkg/common"
)

// DefaultFileName is used when the path setting names a directory.
const DefaultFileName = "snapshots.sqlite"

const schema = `
CREATE TABLE IF NOT EXISTS objects (
	key           TEXT PRIMARY KEY,
	data          BLOB NOT NULL,
	content_type  TEXT NOT NULL DEFAULT '',
	size          INTEGER NOT NULL,
	created_at    INTEGER NOT NULL,
	last_modified INTEGER NOT NULL,
	etag          TEXT NOT NULL DEFAULT '',
	custom        TEXT NOT NULL DEFAULT '{}'
)`

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=10000",
	"PRAGMA synchronous=NORMAL",
}

// SQLite is a storage backend on top of a SQLite database.
type SQLite struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// New creates a new, unconfigured SQLite backend.
func New() common.Storage {
	return &SQLite{now: time.Now}
}

// Configure opens the database and creates the objects table.
// Settings:
//   - path: database file, a directory that will hold snapshots.sqlite, or
//     ":memory:" (required)
func (s *SQLite) Configure(settings map[string]string) error {
	path := strings.TrimSpace(settings["path"])
	if path == "" {
		return common.ErrPathNotSet
	}
	if path != ":memory:" {
		if info, err := os.Stat(path); (err == nil && info.IsDir()) || filepath.Ext(path) == "" {
			path = filepath.Join(path, DefaultFileName)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return fmt.Errorf("ensure sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return fmt.Errorf("create schema: %w", err)
	}

	if s.db != nil {
		_ = s.db.Close()
	}
	s.db = db
	s.path = path
	return nil
}

// Path returns the database path.
func (s *SQLite) Path() string {
	return s.path
}

// Put inserts or replaces an object.
func (s *SQLite) Put(ctx context.Context, key string, data io.Reader, metadata *common.Metadata) error {
	if err := common.ValidateKey(key); err != nil {
		return err
	}
	if s.db == nil {
		return common.ErrNotConfigured
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
	custom, err := json.Marshal(meta.Custom)
	if err != nil {
		return err
	}
	now := s.now()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO objects (key, data, content_type, size, created_at, last_modified, etag, custom)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			data = excluded.data,
			content_type = excluded.content_type,
			size = excluded.size,
			created_at = excluded.created_at,
			last_modified = excluded.last_modified,
			etag = excluded.etag,
			custom = excluded.custom`,
		key, payload, meta.ContentType, len(payload), now.UnixNano(), now.UnixNano(),
		fmt.Sprintf("%d-%d", now.UnixNano(), len(payload)), string(custom),
	)
	if err != nil {
		return fmt.Errorf("write object %s: %w", key, err)
	}
	return nil
}

// Get retrieves an object.
func (s *SQLite) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := common.ValidateKey(key); err != nil {
		return nil, err
	}
	if s.db == nil {
		return nil, common.ErrNotConfigured
	}

	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM objects WHERE key = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", common.ErrKeyNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(payload)), nil
}

// GetMetadata retrieves the metadata for an object.
func (s *SQLite) GetMetadata(ctx context.Context, key string) (*common.Metadata, error) {
	if err := common.ValidateKey(key); err != nil {
		return nil, err
	}
	if s.db == nil {
		return nil, common.ErrNotConfigured
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT key, content_type, size, created_at, last_modified, etag, custom
		FROM objects WHERE key = ?`, key)
	info, err := scanObject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", common.ErrKeyNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	return info.Metadata, nil
}

// Exists checks if an object exists.
func (s *SQLite) Exists(ctx context.Context, key string) (bool, error) {
	if err := common.ValidateKey(key); err != nil {
		return false, err
	}
	if s.db == nil {
		return false, common.ErrNotConfigured
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM objects WHERE key = ?`, key).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// List returns the objects whose keys start with prefix, in key order.
func (s *SQLite) List(ctx context.Context, prefix string) ([]*common.ObjectInfo, error) {
	if s.db == nil {
		return nil, common.ErrNotConfigured
	}

	// substr comparison avoids LIKE wildcard escaping for "_" in prefixes.
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, content_type, size, created_at, last_modified, etag, custom
		FROM objects WHERE substr(key, 1, ?) = ? ORDER BY key`, len(prefix), prefix)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	objects := []*common.ObjectInfo{}
	for rows.Next() {
		info, err := scanObject(rows)
		if err != nil {
			return nil, err
		}
		objects = append(objects, info)
	}
	return objects, rows.Err()
}

// Close closes the database.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanObject(row scanner) (*common.ObjectInfo, error) {
	var (
		key, contentType, etag, custom string
		size, createdAt, lastModified  int64
	)
	if err := row.Scan(&key, &contentType, &size, &createdAt, &lastModified, &etag, &custom); err != nil {
		return nil, err
	}

	meta := &common.Metadata{
		ContentType:  contentType,
		Size:         size,
		CreatedAt:    time.Unix(0, createdAt),
		LastModified: time.Unix(0, lastModified),
		ETag:         etag,
	}
	if custom != "" && custom != "null" {
		if err := json.Unmarshal([]byte(custom), &meta.Custom); err != nil {
			return nil, fmt.Errorf("decode custom metadata for %s: %w", key, err)
		}
	}
	return &common.ObjectInfo{Key: key, Metadata: meta}, nil
}
