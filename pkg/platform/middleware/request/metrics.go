package request

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds HTTP-level instruments. Buckets reach past a minute because
// a ledger-backed collect waits for block confirmation.
type Metrics struct {
	EndpointLatency *prometheus.HistogramVec
}

// NewMetrics registers on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func NewMetricsWithRegisterer(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		EndpointLatency: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "visitproof_http_request_duration_seconds",
			Help:    "Latency of HTTP requests by route, method and status class",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"endpoint", "method", "status"}),
	}
}

func (m *Metrics) ObserveEndpointLatency(endpoint, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.EndpointLatency.WithLabelValues(endpoint, method, statusClass(status)).Observe(d.Seconds())
}

func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}
