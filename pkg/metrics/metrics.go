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

// Package metrics exposes cycle metrics to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jeremyhahn/carwatch/pkg/differ"
)

// Cycle outcomes used as the status label.
const (
	StatusSuccess  = "success"
	StatusFirstRun = "first_run"
	StatusFetch    = "fetch_error"
	StatusPersist  = "persistence_error"
)

// Recorder receives cycle observations.
type Recorder interface {
	ObserveCycle(status string, duration time.Duration)
	ObserveChanges(cs differ.Changeset)
	ObserveNotification(sent bool, err error)
	SetCatalogSize(entries int)
}

// Prometheus records cycle observations as Prometheus metrics.
type Prometheus struct {
	cycles        *prometheus.CounterVec
	cycleDuration *prometheus.HistogramVec
	changes       *prometheus.CounterVec
	notifications *prometheus.CounterVec
	catalogSize   prometheus.Gauge
	lastSuccess   prometheus.Gauge
}

// NewPrometheus registers the carwatch metrics with registerer, or the
// default registerer when nil.
func NewPrometheus(registerer prometheus.Registerer) *Prometheus {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Prometheus{
		cycles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carwatch_cycles_total",
				Help: "Total number of monitor cycles by outcome",
			},
			[]string{"status"},
		),
		cycleDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "carwatch_cycle_duration_seconds",
				Help:    "Duration of monitor cycles in seconds",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"status"},
		),
		changes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carwatch_changes_total",
				Help: "Total number of catalog changes detected by kind",
			},
			[]string{"kind"},
		),
		notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carwatch_notifications_total",
				Help: "Total number of change notifications by outcome",
			},
			[]string{"status"},
		),
		catalogSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "carwatch_catalog_entries",
				Help: "Number of make/model groups in the latest snapshot",
			},
		),
		lastSuccess: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "carwatch_last_success_timestamp_seconds",
				Help: "Unix time of the last cycle that saved a snapshot",
			},
		),
	}
}

func (p *Prometheus) ObserveCycle(status string, duration time.Duration) {
	p.cycles.WithLabelValues(status).Inc()
	p.cycleDuration.WithLabelValues(status).Observe(duration.Seconds())
	if status == StatusSuccess || status == StatusFirstRun {
		p.lastSuccess.SetToCurrentTime()
	}
}

func (p *Prometheus) ObserveChanges(cs differ.Changeset) {
	p.changes.WithLabelValues("added").Add(float64(len(cs.Added)))
	p.changes.WithLabelValues("modified").Add(float64(len(cs.Modified)))
	p.changes.WithLabelValues("removed").Add(float64(len(cs.Removed)))
}

func (p *Prometheus) ObserveNotification(sent bool, err error) {
	switch {
	case err != nil:
		p.notifications.WithLabelValues("error").Inc()
	case sent:
		p.notifications.WithLabelValues("sent").Inc()
	default:
		p.notifications.WithLabelValues("skipped").Inc()
	}
}

func (p *Prometheus) SetCatalogSize(entries int) {
	p.catalogSize.Set(float64(entries))
}

// NoOp discards observations.
type NoOp struct{}

func (NoOp) ObserveCycle(string, time.Duration) {}
func (NoOp) ObserveChanges(differ.Changeset)    {}
func (NoOp) ObserveNotification(bool, error)    {}
func (NoOp) SetCatalogSize(int)                 {}

var (
	_ Recorder = (*Prometheus)(nil)
	_ Recorder = NoOp{}
)
