package domain

import "time"

// Metrics is implemented by the telemetry layer; components hold the
// interface so tests can pass a noop.
type Metrics interface {
	ObserveInvocation(server, tool, status string, duration time.Duration)
	ObserveDial(server string, success bool)
	ObserveCatalogFetch(server string, cacheHit bool)
	SetActiveSessions(count int)
}
