// Package metrics exposes Prometheus instrumentation for the enumeration core.
//
// A nil *Metrics is valid and records nothing, so components take one as an
// optional dependency.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Page sources
const (
	SourceRemote   = "remote"
	SourceCache    = "cache"
	SourceFallback = "fallback"
)

// Metrics holds the collectors of one registry
type Metrics struct {
	pagesResolved   *prometheus.CounterVec
	listerDuration  *prometheus.HistogramVec
	fallbacks       *prometheus.CounterVec
	storeErrors     *prometheus.CounterVec
	changesDrained  *prometheus.CounterVec
	pendingChanges  *prometheus.GaugeVec
	reconcileEvents *prometheus.CounterVec
}

// New registers the collectors on reg. A nil reg returns nil (disabled).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	f := promauto.With(reg)

	return &Metrics{
		pagesResolved: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "syncenum_pages_resolved_total",
				Help: "Enumeration pages resolved by scope kind and data source",
			},
			[]string{"scope", "source"},
		),
		listerDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "syncenum_lister_duration_seconds",
				Help:    "Duration of remote listing calls",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"op", "status"},
		),
		fallbacks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "syncenum_transport_fallbacks_total",
				Help: "Pages served from cache because the remote listing failed",
			},
			[]string{"account"},
		),
		storeErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "syncenum_store_errors_total",
				Help: "Metadata store failures by operation",
			},
			[]string{"op"},
		),
		changesDrained: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "syncenum_changes_drained_total",
				Help: "Changes delivered by changes-since-anchor requests",
			},
			[]string{"class", "kind"},
		),
		pendingChanges: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "syncenum_pending_changes",
				Help: "Changes waiting for the next drain",
			},
			[]string{"account", "class"},
		),
		reconcileEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "syncenum_reconcile_items_total",
				Help: "Records updated or deleted by reconciliation",
			},
			[]string{"kind"},
		),
	}
}

// PageResolved counts one delivered page
func (m *Metrics) PageResolved(scope, source string) {
	if m == nil {
		return
	}
	m.pagesResolved.WithLabelValues(scope, source).Inc()
}

// ObserveLister records the latency of one listing call
func (m *Metrics) ObserveLister(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.listerDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
}

// Fallback counts a page served from cache after a listing failure
func (m *Metrics) Fallback(account string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(account).Inc()
}

// StoreError counts a failed store operation
func (m *Metrics) StoreError(op string) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(op).Inc()
}

// Drained counts changes handed out by one drain
func (m *Metrics) Drained(class string, deleted, updated int) {
	if m == nil {
		return
	}
	m.changesDrained.WithLabelValues(class, "deleted").Add(float64(deleted))
	m.changesDrained.WithLabelValues(class, "updated").Add(float64(updated))
}

// SetPending publishes the pending change count of one class
func (m *Metrics) SetPending(account, class string, n int) {
	if m == nil {
		return
	}
	m.pendingChanges.WithLabelValues(account, class).Set(float64(n))
}

// Reconciled counts records touched by a merge
func (m *Metrics) Reconciled(updated, deleted int) {
	if m == nil {
		return
	}
	m.reconcileEvents.WithLabelValues("updated").Add(float64(updated))
	m.reconcileEvents.WithLabelValues("deleted").Add(float64(deleted))
}
