package domain

import "time"

// Health status values reported by dependency probes.
const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)

// SystemHealthCheck is the outcome of a single dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency probes with build metadata for the
// readiness endpoint.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
