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

// Package local stores snapshots as files in a directory. Each object has a
// JSON sidecar holding its metadata; objects copied into the directory by
// hand have no sidecar and report the file's modification time instead.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeremyhahn/carwatch/pkg/adapters"
	"github.com/jeremyhahn/carwatch/pkg/common"
)

const metadataSuffix = ".metadata.json"

// Local is a storage backend that stores files on the local disk.
type Local struct {
	path   string
	logger adapters.Logger
	now    func() time.Time
}

// New creates a new Local storage backend.
func New() common.Storage {
	return &Local{
		logger: adapters.NewNoOpLogger(),
		now:    time.Now,
	}
}

// Configure sets up the backend with the necessary settings.
// Settings:
//   - path: The directory path for local storage (required)
func (l *Local) Configure(settings map[string]string) error {
	l.path = settings["path"]
	if l.path == "" {
		return common.ErrPathNotSet
	}
	return os.MkdirAll(l.path, 0750)
}

// SetLogger sets the logger used for storage operations.
func (l *Local) SetLogger(logger adapters.Logger) {
	if logger != nil {
		l.logger = logger
	}
}

// GetPath returns the base path of the local storage.
func (l *Local) GetPath() string {
	return l.path
}

// Put stores an object and its metadata sidecar.
func (l *Local) Put(ctx context.Context, key string, data io.Reader, metadata *common.Metadata) error {
	if err := common.ValidateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.path == "" {
		return common.ErrNotConfigured
	}

	path := filepath.Join(l.path, key)
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}

	// Write to a temp file and rename so a follower never sees a partial file.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	size, err := io.Copy(tmp, data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		l.logger.Error(ctx, "Failed to write object",
			adapters.Field{Key: "key", Value: key},
			adapters.Field{Key: "error", Value: err.Error()},
		)
		return err
	}

	meta := metadata.Clone()
	if meta == nil {
		meta = &common.Metadata{}
	}
	now := l.now()
	meta.Size = size
	meta.CreatedAt = now
	meta.LastModified = now
	meta.ETag = fmt.Sprintf("%d-%d", now.UnixNano(), size)

	// Sidecar first: the data file appearing is what watchers react to.
	if err := l.saveMetadata(key, meta); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}

	l.logger.Debug(ctx, "Stored object",
		adapters.Field{Key: "key", Value: key},
		adapters.Field{Key: "path", Value: path},
		adapters.Field{Key: "size", Value: formatBytes(size)},
	)
	return nil
}

// Get retrieves an object from the backend.
func (l *Local) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := common.ValidateKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.Open(filepath.Join(l.path, key)) // #nosec G304 -- key validated by common.ValidateKey
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", common.ErrKeyNotFound, key)
		}
		return nil, err
	}
	return file, nil
}

// GetMetadata returns the sidecar metadata, or metadata derived from the
// file itself when no sidecar exists.
func (l *Local) GetMetadata(ctx context.Context, key string) (*common.Metadata, error) {
	if err := common.ValidateKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(filepath.Join(l.path, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", common.ErrKeyNotFound, key)
		}
		return nil, err
	}
	return l.metadataFor(key, info), nil
}

// Exists checks if an object exists in the backend.
func (l *Local) Exists(ctx context.Context, key string) (bool, error) {
	if err := common.ValidateKey(key); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := os.Stat(filepath.Join(l.path, key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// List returns the objects whose keys start with prefix.
func (l *Local) List(ctx context.Context, prefix string) ([]*common.ObjectInfo, error) {
	if l.path == "" {
		return nil, common.ErrNotConfigured
	}

	objects := []*common.ObjectInfo{}
	err := filepath.WalkDir(l.path, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() || strings.HasSuffix(name, metadataSuffix) || strings.HasPrefix(name, ".tmp-") {
			return nil
		}

		rel, err := filepath.Rel(l.path, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			// Removed between readdir and stat.
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		objects = append(objects, &common.ObjectInfo{Key: key, Metadata: l.metadataFor(key, info)})
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Debug(ctx, "Listed objects",
		adapters.Field{Key: "prefix", Value: prefix},
		adapters.Field{Key: "count", Value: len(objects)},
	)
	return objects, nil
}

// Close is a no-op for local storage.
func (l *Local) Close() error {
	return nil
}

func (l *Local) metadataFor(key string, info fs.FileInfo) *common.Metadata {
	meta, err := l.loadMetadata(key)
	if err != nil {
		return &common.Metadata{
			Size:         info.Size(),
			CreatedAt:    info.ModTime(),
			LastModified: info.ModTime(),
			ETag:         fmt.Sprintf("%d-%d", info.ModTime().UnixNano(), info.Size()),
		}
	}
	return meta
}

// saveMetadata saves metadata to a sidecar file.
func (l *Local) saveMetadata(key string, metadata *common.Metadata) error {
	if metadata.Custom != nil {
		if err := common.ValidateMetadata(metadata.Custom); err != nil {
			return err
		}
	}

	data, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(l.path, key)+metadataSuffix, data, 0600)
}

// loadMetadata loads metadata from a sidecar file.
func (l *Local) loadMetadata(key string) (*common.Metadata, error) {
	data, err := os.ReadFile(filepath.Join(l.path, key) + metadataSuffix) // #nosec G304 -- key validated by caller
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", common.ErrMetadataNotFound, key)
		}
		return nil, err
	}

	var metadata common.Metadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, err
	}
	return &metadata, nil
}

// formatBytes formats a byte count as a human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
