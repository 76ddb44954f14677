package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// APIMetrics times the status API endpoints.
type APIMetrics struct {
	latency *prometheus.HistogramVec
	errors  *prometheus.CounterVec
}

func NewAPIMetrics(reg prometheus.Registerer) *APIMetrics {
	f := promauto.With(reg)
	return &APIMetrics{
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sessionbreak",
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Latency of status API endpoints",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessionbreak",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Errors by status API endpoint",
		}, []string{"endpoint"}),
	}
}

// Observe records one call. Callers use it as defer m.Observe("bars", time.Now(), &err).
func (m *APIMetrics) Observe(endpoint string, start time.Time, err *error) {
	if m == nil {
		return
	}
	m.latency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil && *err != nil {
		m.errors.WithLabelValues(endpoint).Inc()
	}
}
