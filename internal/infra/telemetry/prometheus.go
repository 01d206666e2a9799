package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"mcpagg/internal/domain"
)

type PrometheusMetrics struct {
	invocationDuration *prometheus.HistogramVec
	dials              *prometheus.CounterVec
	catalogFetches     *prometheus.CounterVec
	activeSessions     prometheus.Gauge
}

func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &PrometheusMetrics{
		invocationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcpagg_tool_invocation_duration_seconds",
				Help:    "Duration of proxied tool invocations in seconds",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"server", "tool", "status"},
		),
		dials: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpagg_session_dials_total",
				Help: "Total number of downstream session dial attempts",
			},
			[]string{"server", "result"},
		),
		catalogFetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpagg_catalog_fetches_total",
				Help: "Total number of tool catalog lookups by cache outcome",
			},
			[]string{"server", "outcome"},
		),
		activeSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "mcpagg_active_sessions",
				Help: "Current number of live downstream sessions",
			},
		),
	}
}

func (m *PrometheusMetrics) ObserveInvocation(server, tool, status string, duration time.Duration) {
	m.invocationDuration.WithLabelValues(server, tool, status).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) ObserveDial(server string, success bool) {
	result := "error"
	if success {
		result = "ok"
	}
	m.dials.WithLabelValues(server, result).Inc()
}

func (m *PrometheusMetrics) ObserveCatalogFetch(server string, cacheHit bool) {
	outcome := "miss"
	if cacheHit {
		outcome = "hit"
	}
	m.catalogFetches.WithLabelValues(server, outcome).Inc()
}

func (m *PrometheusMetrics) SetActiveSessions(count int) {
	m.activeSessions.Set(float64(count))
}

var _ domain.Metrics = (*PrometheusMetrics)(nil)
