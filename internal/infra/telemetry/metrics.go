package telemetry

import (
	"time"

	"mcpagg/internal/domain"
)

type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (n *NoopMetrics) ObserveInvocation(_, _, _ string, _ time.Duration) {}

func (n *NoopMetrics) ObserveDial(_ string, _ bool) {}

func (n *NoopMetrics) ObserveCatalogFetch(_ string, _ bool) {}

func (n *NoopMetrics) SetActiveSessions(_ int) {}

var _ domain.Metrics = (*NoopMetrics)(nil)
