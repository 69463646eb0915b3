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

// Package scheduler runs monitor cycles on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/jeremyhahn/carwatch/pkg/adapters"
	"github.com/jeremyhahn/carwatch/pkg/monitor"
)

// MinInterval is the shortest accepted interval.
const MinInterval = time.Second

// ErrInvalidInterval is returned for intervals below MinInterval.
var ErrInvalidInterval = errors.New("interval must be at least one second")

// Runner runs a single cycle.
type Runner interface {
	RunCycle(ctx context.Context) (*monitor.CycleResult, error)
}

// Scheduler runs a cycle immediately and then once per interval. Cycles
// run on a single goroutine and never overlap. Ticks that arrive while a
// cycle is running are dropped, so a slow cycle is followed by a full
// interval of rest.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	logger   adapters.Logger
	onResult func(*monitor.CycleResult, error)
	ticker   func(time.Duration) (<-chan time.Time, func())
}

func newTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Config configures a Scheduler.
type Config struct {
	Runner   Runner
	Interval time.Duration
	Logger   adapters.Logger
	// OnResult is called after every cycle.
	OnResult func(*monitor.CycleResult, error)
}

// New creates a Scheduler.
func New(config Config) (*Scheduler, error) {
	if config.Runner == nil {
		return nil, errors.New("runner is required")
	}
	if config.Interval < MinInterval {
		return nil, ErrInvalidInterval
	}
	if config.Logger == nil {
		config.Logger = adapters.NewNoOpLogger()
	}
	return &Scheduler{
		runner:   config.Runner,
		interval: config.Interval,
		logger:   config.Logger,
		onResult: config.OnResult,
		ticker:   newTicker,
	}, nil
}

// Run blocks until ctx is done. Cycle errors are logged and the loop
// continues.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info(ctx, "Scheduler started",
		adapters.Field{Key: "interval", Value: s.interval.String()})

	ticks, stop := s.ticker(s.interval)
	defer stop()

	s.runOnce(ctx)
	drain(ticks)
	for {
		select {
		case <-ticks:
			s.runOnce(ctx)
			drain(ticks)
		case <-ctx.Done():
			s.logger.Info(ctx, "Scheduler stopping (context done)")
			return nil
		}
	}
}

// drain discards a tick buffered while a cycle ran.
func drain(ticks <-chan time.Time) {
	select {
	case <-ticks:
	default:
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	s.logger.Debug(ctx, "Running scheduled cycle")
	result, err := s.runner.RunCycle(ctx)
	if err != nil {
		s.logger.Error(ctx, "Scheduled cycle failed", adapters.Field{Key: "error", Value: err.Error()})
	} else {
		s.logger.Info(ctx, "Scheduled cycle completed",
			adapters.Field{Key: "snapshot", Value: result.SnapshotID},
			adapters.Field{Key: "changes", Value: result.Changes.Len()},
			adapters.Field{Key: "notified", Value: result.Notified})
	}
	if s.onResult != nil {
		s.onResult(result, err)
	}
}
