package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveIssuance("success", time.Second)
		m.ObserveLedgerCall("claim", nil, time.Second)
		m.IncReconciliationPending("store_write_failed")
		m.IncReconciliationProcessed("backfilled")
		m.IncCatalogCache(true)
		m.IncDetached()
		m.DecDetached()
	})
}

func TestCounters(t *testing.T) {
	m := NewWithRegisterer(prometheus.NewRegistry())

	m.ObserveIssuance("already_collected", 10*time.Millisecond)
	m.ObserveIssuance("already_collected", 10*time.Millisecond)
	m.IncReconciliationPending("store_write_failed")
	m.ObserveLedgerCall("claim", errors.New("revert"), time.Second)
	m.IncDetached()

	assert.InDelta(t, 2, testutil.ToFloat64(m.IssuanceOutcomes.WithLabelValues("already_collected")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ReconciliationPending.WithLabelValues("store_write_failed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.DetachedIssuances), 0)
}
