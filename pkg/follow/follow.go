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

// Package follow watches a local snapshot directory and diffs every new
// snapshot against the one before it as soon as it lands.
package follow

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jeremyhahn/carwatch/pkg/adapters"
	"github.com/jeremyhahn/carwatch/pkg/differ"
	"github.com/jeremyhahn/carwatch/pkg/snapshot"
)

// DefaultDebounce is how long a path must stay quiet before it is processed.
const DefaultDebounce = 250 * time.Millisecond

var (
	// ErrFollowerStopped is returned when Run is called after Close.
	ErrFollowerStopped = errors.New("follower is stopped")

	// ErrDirRequired is returned when no directory is configured.
	ErrDirRequired = errors.New("snapshot directory is required")
)

// Update describes a snapshot that appeared in the watched directory.
type Update struct {
	SnapshotID string           `json:"snapshot_id"`
	PreviousID string           `json:"previous_id,omitempty"`
	FirstRun   bool             `json:"first_run"`
	Changes    differ.Changeset `json:"changes"`
}

// Config configures a Follower.
type Config struct {
	Dir      string
	Store    *snapshot.Store
	Logger   adapters.Logger
	Debounce time.Duration
	OnUpdate func(ctx context.Context, update Update)
}

// Follower reacts to snapshots written into a directory by another
// process, typically a scheduled `carwatch run`.
type Follower struct {
	dir      string
	store    *snapshot.Store
	logger   adapters.Logger
	debounce time.Duration
	onUpdate func(context.Context, Update)

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	stopped bool
}

// New creates a Follower and starts watching dir. Events that arrive before
// Run is called are buffered by the watcher.
func New(config Config) (*Follower, error) {
	if config.Dir == "" {
		return nil, ErrDirRequired
	}
	if config.Store == nil {
		return nil, errors.New("snapshot store is required")
	}
	if config.Logger == nil {
		config.Logger = adapters.NewNoOpLogger()
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Clean(config.Dir)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, &WatchError{Op: "watch", Path: dir, Err: err}
	}

	return &Follower{
		dir:      dir,
		store:    config.Store,
		logger:   config.Logger,
		debounce: config.Debounce,
		onUpdate: config.OnUpdate,
		watcher:  watcher,
	}, nil
}

// Run processes events until ctx is done or the follower is closed.
func (f *Follower) Run(ctx context.Context) error {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return ErrFollowerStopped
	}
	f.mu.Unlock()

	f.logger.Info(ctx, "Following snapshot directory", adapters.Field{Key: "path", Value: f.dir})

	pending := make(map[string]struct{})
	timer := time.NewTimer(f.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case event, ok := <-f.watcher.Events:
			if !ok {
				return nil
			}
			id, ok := f.snapshotID(event)
			if !ok {
				continue
			}
			pending[id] = struct{}{}
			timer.Reset(f.debounce)

		case err, ok := <-f.watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.Error(ctx, "Filesystem watcher error", adapters.Field{Key: "error", Value: err.Error()})

		case <-timer.C:
			ids := make([]string, 0, len(pending))
			for id := range pending {
				ids = append(ids, id)
			}
			clear(pending)
			sort.Strings(ids)
			for _, id := range ids {
				f.process(ctx, id)
			}

		case <-ctx.Done():
			f.logger.Info(ctx, "Follower stopping (context done)")
			return nil
		}
	}
}

// Close stops watching.
func (f *Follower) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return nil
	}
	f.stopped = true
	return f.watcher.Close()
}

// snapshotID returns the snapshot id for events that create or replace a
// snapshot file directly inside the watched directory.
func (f *Follower) snapshotID(event fsnotify.Event) (string, bool) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return "", false
	}
	if filepath.Dir(event.Name) != f.dir {
		return "", false
	}
	name := filepath.Base(event.Name)
	return name, snapshot.IsSnapshotKey(name)
}

func (f *Follower) process(ctx context.Context, id string) {
	update, err := f.diff(ctx, id)
	if err != nil {
		f.logger.Warn(ctx, "Skipping snapshot",
			adapters.Field{Key: "snapshot", Value: id},
			adapters.Field{Key: "error", Value: err.Error()})
		return
	}
	f.logger.Info(ctx, "Snapshot landed",
		adapters.Field{Key: "snapshot", Value: id},
		adapters.Field{Key: "previous", Value: update.PreviousID},
		adapters.Field{Key: "changes", Value: update.Changes.Len()})
	if f.onUpdate != nil {
		f.onUpdate(ctx, update)
	}
}

func (f *Follower) diff(ctx context.Context, id string) (Update, error) {
	current, err := f.store.Load(ctx, id)
	if err != nil {
		return Update{}, err
	}
	update := Update{SnapshotID: id}
	previous, err := f.store.LoadMostRecent(ctx, id)
	switch {
	case errors.Is(err, snapshot.ErrCorruptSnapshot):
		f.logger.Warn(ctx, "Previous snapshot is corrupt", adapters.Field{Key: "error", Value: err.Error()})
		update.FirstRun = true
		return update, nil
	case err != nil:
		return Update{}, err
	case previous == nil:
		update.FirstRun = true
		return update, nil
	}
	update.PreviousID = previous.ID
	update.Changes = differ.Compare(previous, current)
	return update, nil
}

// WatchError represents an error from the directory watcher.
type WatchError struct {
	Op   string
	Path string
	Err  error
}

func (e *WatchError) Error() string {
	return fmt.Sprintf("watcher %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *WatchError) Unwrap() error {
	return e.Err
}
