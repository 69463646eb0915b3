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

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/carwatch/pkg/catalog"
	"github.com/jeremyhahn/carwatch/pkg/differ"
)

func TestNewPrometheus_UsesProvidedRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewPrometheus(registry)

	m.ObserveCycle(StatusSuccess, 250*time.Millisecond)
	m.ObserveChanges(differ.Changeset{Added: []catalog.Entry{{Make: "Honda", Model: "Civic", Trimlines: 2}}})
	m.ObserveNotification(true, nil)
	m.SetCatalogSize(42)

	families, err := registry.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	for _, want := range []string{
		"carwatch_cycles_total",
		"carwatch_cycle_duration_seconds",
		"carwatch_changes_total",
		"carwatch_notifications_total",
		"carwatch_catalog_entries",
		"carwatch_last_success_timestamp_seconds",
	} {
		assert.Contains(t, names, want)
	}
}

func TestPrometheusCounts(t *testing.T) {
	m := NewPrometheus(prometheus.NewRegistry())

	m.ObserveCycle(StatusFetch, time.Second)
	m.ObserveCycle(StatusSuccess, time.Second)
	m.ObserveCycle(StatusSuccess, time.Second)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cycles.WithLabelValues(StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues(StatusFetch)))
	assert.Greater(t, testutil.ToFloat64(m.lastSuccess), 0.0)

	m.ObserveChanges(differ.Changeset{
		Modified: []differ.Modification{{Before: 1, After: 2}, {Before: 3, After: 1}},
		Removed:  []catalog.Entry{{Make: "Kia", Model: "Niro"}},
	})
	assert.Equal(t, 2.0, testutil.ToFloat64(m.changes.WithLabelValues("modified")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.changes.WithLabelValues("removed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.changes.WithLabelValues("added")))

	m.ObserveNotification(false, nil)
	m.ObserveNotification(false, errors.New("boom"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("error")))

	m.SetCatalogSize(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(m.catalogSize))
}

func TestNoOp(t *testing.T) {
	var r Recorder = NoOp{}
	r.ObserveCycle(StatusSuccess, time.Second)
	r.ObserveChanges(differ.Changeset{})
	r.ObserveNotification(true, nil)
	r.SetCatalogSize(1)
}
