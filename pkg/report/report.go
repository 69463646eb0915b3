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

// Package report renders a changeset as a notification message and hands
// it to a notifier.
package report

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/jeremyhahn/carwatch/pkg/adapters"
	"github.com/jeremyhahn/carwatch/pkg/differ"
	"github.com/jeremyhahn/carwatch/pkg/notify"
)

const (
	// Header opens every message.
	Header = "<b>🚗 Car Inventory Update</b>"

	// NoChanges replaces the sections when the changeset is empty.
	NoChanges = "No changes detected in inventory"

	// TimeLayout formats the trailing update time.
	TimeLayout = "2006-01-02 15:04:05"

	headingAdded    = "<b>🆕 New Models:</b>"
	headingModified = "<b>📝 Changed Trimlines:</b>"
	headingRemoved  = "<b>❌ Removed Models:</b>"
)

// Format renders cs as a Telegram HTML message stamped with at.
func Format(cs differ.Changeset, at time.Time) string {
	parts := []string{Header + "\n"}

	if len(cs.Added) > 0 {
		parts = append(parts, "\n"+headingAdded)
		for _, e := range cs.Added {
			parts = append(parts, fmt.Sprintf("• %s (Trimlines: %d)", escape(e.Key().String()), e.Trimlines))
		}
	}
	if len(cs.Modified) > 0 {
		parts = append(parts, "\n"+headingModified)
		for _, m := range cs.Modified {
			parts = append(parts, fmt.Sprintf("• %s: %d → %d", escape(m.Key.String()), m.Before, m.After))
		}
	}
	if len(cs.Removed) > 0 {
		parts = append(parts, "\n"+headingRemoved)
		for _, e := range cs.Removed {
			parts = append(parts, fmt.Sprintf("• %s (Had %d trimlines)", escape(e.Key().String()), e.Trimlines))
		}
	}
	if cs.IsEmpty() {
		parts = append(parts, "\n"+NoChanges)
	}

	parts = append(parts, "\n\nUpdate time: "+at.Format(TimeLayout))
	return strings.Join(parts, "\n")
}

// PlainText strips the markup from a formatted message for console output.
func PlainText(message string) string {
	return notify.StripMarkup(message)
}

func escape(s string) string {
	return html.EscapeString(s)
}

// Reporter formats changesets and delivers them when there is something
// to report.
type Reporter struct {
	notifier notify.Notifier
	logger   adapters.Logger
	now      func() time.Time
	loc      *time.Location
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithClock overrides the clock used for the update time line.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) { r.now = now }
}

// WithLocation sets the time zone of the update time line.
func WithLocation(loc *time.Location) Option {
	return func(r *Reporter) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger adapters.Logger) Option {
	return func(r *Reporter) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a Reporter delivering through notifier.
func New(notifier notify.Notifier, opts ...Option) *Reporter {
	r := &Reporter{
		notifier: notifier,
		logger:   adapters.NewNoOpLogger(),
		now:      time.Now,
		loc:      time.Local,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Message renders cs with the reporter's clock.
func (r *Reporter) Message(cs differ.Changeset) string {
	return Format(cs, r.now().In(r.loc))
}

// Report sends message, the rendering of cs, when cs is non-empty and
// reports whether it was sent. An empty message is rendered from cs with
// Message. An empty changeset is not delivered.
func (r *Reporter) Report(ctx context.Context, cs differ.Changeset, message string) (bool, error) {
	if cs.IsEmpty() {
		r.logger.Debug(ctx, "No changes to report")
		return false, nil
	}
	if r.notifier == nil {
		return false, nil
	}

	if message == "" {
		message = r.Message(cs)
	}
	if err := r.notifier.Notify(ctx, message); err != nil {
		r.logger.Error(ctx, "Failed to deliver change notification",
			adapters.Field{Key: "notifier", Value: r.notifier.Name()},
			adapters.Field{Key: "error", Value: err},
		)
		if errors.Is(err, notify.ErrNotification) {
			return false, err
		}
		return false, fmt.Errorf("%w: %w", notify.ErrNotification, err)
	}
	r.logger.Info(ctx, "Delivered change notification",
		adapters.Field{Key: "notifier", Value: r.notifier.Name()},
		adapters.Field{Key: "changes", Value: cs.Len()},
	)
	return true, nil
}
