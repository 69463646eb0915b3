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

// Package monitor runs the fetch, save, compare and report cycle.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeremyhahn/carwatch/pkg/adapters"
	"github.com/jeremyhahn/carwatch/pkg/catalog"
	"github.com/jeremyhahn/carwatch/pkg/differ"
	"github.com/jeremyhahn/carwatch/pkg/metrics"
	"github.com/jeremyhahn/carwatch/pkg/report"
	"github.com/jeremyhahn/carwatch/pkg/snapshot"
)

// Fetcher returns the current raw catalog payload.
type Fetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// Reporter renders and delivers changesets. Report delivers message, the
// output of Message for cs.
type Reporter interface {
	Message(cs differ.Changeset) string
	Report(ctx context.Context, cs differ.Changeset, message string) (bool, error)
}

// Config wires the collaborators of a Monitor.
type Config struct {
	Fetcher  Fetcher
	Store    *snapshot.Store
	Reporter Reporter
	Logger   adapters.Logger
	Metrics  metrics.Recorder
	// Console receives the plain-text change message of every compared cycle.
	Console io.Writer
	Clock   func() time.Time
}

// CycleResult describes a completed cycle.
type CycleResult struct {
	RunID           string           `json:"run_id"`
	SnapshotID      string           `json:"snapshot_id"`
	PreviousID      string           `json:"previous_id,omitempty"`
	Entries         int              `json:"entries"`
	FirstRun        bool             `json:"first_run"`
	PreviousCorrupt bool             `json:"previous_corrupt,omitempty"`
	Changes         differ.Changeset `json:"changes"`
	Notified        bool             `json:"notified"`
	NotifyError     string           `json:"notify_error,omitempty"`
	Duration        time.Duration    `json:"duration"`
}

// Monitor runs cycles. Concurrent RunCycle calls are serialized.
type Monitor struct {
	mu       sync.Mutex
	fetcher  Fetcher
	store    *snapshot.Store
	reporter Reporter
	logger   adapters.Logger
	metrics  metrics.Recorder
	console  io.Writer
	now      func() time.Time
}

// New creates a Monitor from config.
func New(config Config) (*Monitor, error) {
	if config.Fetcher == nil {
		return nil, ErrFetcherRequired
	}
	if config.Store == nil {
		return nil, ErrStoreRequired
	}
	m := &Monitor{
		fetcher:  config.Fetcher,
		store:    config.Store,
		reporter: config.Reporter,
		logger:   config.Logger,
		metrics:  config.Metrics,
		console:  config.Console,
		now:      config.Clock,
	}
	if m.reporter == nil {
		m.reporter = report.New(nil)
	}
	if m.logger == nil {
		m.logger = adapters.NewNoOpLogger()
	}
	if m.metrics == nil {
		m.metrics = metrics.NoOp{}
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m, nil
}

// Store returns the snapshot store the monitor writes to.
func (m *Monitor) Store() *snapshot.Store {
	return m.store
}

// RunCycle fetches the catalog, saves it, compares it with the previous
// snapshot and reports the changes. A first run, a corrupt previous
// snapshot and a failed notification all complete without error.
func (m *Monitor) RunCycle(ctx context.Context) (*CycleResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := m.now()
	result := &CycleResult{RunID: uuid.NewString()}
	logger := m.logger.WithFields(adapters.Field{Key: "run_id", Value: result.RunID})
	finish := func(status string) {
		result.Duration = m.now().Sub(start)
		m.metrics.ObserveCycle(status, result.Duration)
	}

	raw, err := m.fetcher.Fetch(ctx)
	if err != nil {
		finish(metrics.StatusFetch)
		logger.Error(ctx, "Failed to fetch inventory", adapters.Field{Key: "error", Value: err})
		return nil, &CycleError{Stage: StageFetch, Err: fmt.Errorf("%w: %w", ErrFetch, err)}
	}
	current, err := catalog.NewSnapshot("", start, raw)
	if err != nil {
		finish(metrics.StatusFetch)
		logger.Error(ctx, "Fetched inventory is not a catalog", adapters.Field{Key: "error", Value: err})
		return nil, &CycleError{Stage: StageFetch, Err: fmt.Errorf("%w: %w", ErrFetch, err)}
	}
	result.Entries = current.Len()
	m.metrics.SetCatalogSize(current.Len())
	logger.Info(ctx, "Fetched inventory", adapters.Field{Key: "groups", Value: current.Len()})

	id, err := m.store.Save(ctx, raw, start)
	if err != nil {
		finish(metrics.StatusPersist)
		logger.Error(ctx, "Failed to save snapshot", adapters.Field{Key: "error", Value: err})
		return nil, &CycleError{Stage: StageSave, Err: fmt.Errorf("%w: %w", ErrPersistence, err)}
	}
	current.ID = id
	result.SnapshotID = id
	logger = logger.WithFields(adapters.Field{Key: "snapshot", Value: id})

	previous, err := m.store.LoadMostRecent(ctx, id)
	switch {
	case errors.Is(err, snapshot.ErrCorruptSnapshot):
		logger.Warn(ctx, "Previous snapshot is corrupt, treating cycle as first run",
			adapters.Field{Key: "error", Value: err})
		result.FirstRun = true
		result.PreviousCorrupt = true
		finish(metrics.StatusFirstRun)
		return result, nil
	case err != nil:
		finish(metrics.StatusPersist)
		logger.Error(ctx, "Failed to load previous snapshot", adapters.Field{Key: "error", Value: err})
		return result, &CycleError{Stage: StageCompare, Err: fmt.Errorf("%w: %w", ErrLoadPrevious, err)}
	case previous == nil:
		logger.Info(ctx, "No previous snapshot, skipping comparison")
		result.FirstRun = true
		finish(metrics.StatusFirstRun)
		return result, nil
	}

	result.PreviousID = previous.ID
	result.Changes = differ.Compare(previous, current)
	m.metrics.ObserveChanges(result.Changes)
	logger.Info(ctx, "Compared snapshots",
		adapters.Field{Key: "previous", Value: previous.ID},
		adapters.Field{Key: "added", Value: len(result.Changes.Added)},
		adapters.Field{Key: "modified", Value: len(result.Changes.Modified)},
		adapters.Field{Key: "removed", Value: len(result.Changes.Removed)},
	)

	message := m.reporter.Message(result.Changes)
	sent, err := m.reporter.Report(ctx, result.Changes, message)
	m.metrics.ObserveNotification(sent, err)
	result.Notified = sent
	if err != nil {
		logger.Warn(ctx, "Change notification failed", adapters.Field{Key: "error", Value: err})
		result.NotifyError = err.Error()
	}

	if m.console != nil {
		_, _ = fmt.Fprintln(m.console, report.PlainText(message))
	}

	finish(metrics.StatusSuccess)
	return result, nil
}
