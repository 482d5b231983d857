// Package metrics defines the Prometheus instruments of the stamp pipeline.
// Every method is safe to call on a nil *Metrics so tests can omit them.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	IssuanceOutcomes        *prometheus.CounterVec
	IssuanceDuration        *prometheus.HistogramVec
	LedgerCallDuration      *prometheus.HistogramVec
	ReconciliationPending   *prometheus.CounterVec
	ReconciliationProcessed *prometheus.CounterVec
	CatalogCacheLookups     *prometheus.CounterVec
	DetachedIssuances       prometheus.Gauge
}

// New registers the metrics on the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the metrics on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		IssuanceOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "visitproof_issuance_outcomes_total",
			Help: "Collect requests by terminal outcome",
		}, []string{"outcome"}),
		IssuanceDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "visitproof_issuance_duration_seconds",
			Help:    "End-to-end duration of collect requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),
		LedgerCallDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "visitproof_ledger_call_duration_seconds",
			Help:    "Duration of ledger RPC operations",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 90},
		}, []string{"operation", "result"}),
		ReconciliationPending: f.NewCounterVec(prometheus.CounterOpts{
			Name: "visitproof_reconciliation_pending_total",
			Help: "Ledger issuances not yet recorded in the store",
		}, []string{"reason"}),
		ReconciliationProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "visitproof_reconciliation_processed_total",
			Help: "Reconciliation events handled by the backfill worker",
		}, []string{"result"}),
		CatalogCacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "visitproof_catalog_cache_lookups_total",
			Help: "Location catalog cache lookups by result",
		}, []string{"result"}),
		DetachedIssuances: f.NewGauge(prometheus.GaugeOpts{
			Name: "visitproof_detached_issuances",
			Help: "Ledger claims still completing after their request returned",
		}),
	}
}

func (m *Metrics) ObserveIssuance(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.IssuanceOutcomes.WithLabelValues(outcome).Inc()
	m.IssuanceDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) ObserveLedgerCall(operation string, err error, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.LedgerCallDuration.WithLabelValues(operation, result).Observe(d.Seconds())
}

func (m *Metrics) IncReconciliationPending(reason string) {
	if m == nil {
		return
	}
	m.ReconciliationPending.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncReconciliationProcessed(result string) {
	if m == nil {
		return
	}
	m.ReconciliationProcessed.WithLabelValues(result).Inc()
}

func (m *Metrics) IncCatalogCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CatalogCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.CatalogCacheLookups.WithLabelValues("miss").Inc()
}

func (m *Metrics) IncDetached() {
	if m == nil {
		return
	}
	m.DetachedIssuances.Inc()
}

func (m *Metrics) DecDetached() {
	if m == nil {
		return
	}
	m.DetachedIssuances.Dec()
}
