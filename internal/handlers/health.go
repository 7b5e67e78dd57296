package handlers

import (
	"net/http"
	"sort"
	"time"

	domain "github.com/openstats/data-api/internal/domain"
	"github.com/openstats/data-api/internal/services"
)

// HealthHandlers serves the liveness and readiness endpoints.
type HealthHandlers struct {
	system services.SystemService
	build  services.BuildInfo
	clock  func() time.Time
}

// HealthOption customises the health handler set.
type HealthOption func(*HealthHandlers)

// WithHealthSystemService wires the system service used for readiness probes.
func WithHealthSystemService(svc services.SystemService) HealthOption {
	return func(h *HealthHandlers) {
		h.system = svc
	}
}

// WithHealthBuildInfo attaches build metadata to liveness responses.
func WithHealthBuildInfo(build services.BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = build
	}
}

// WithHealthClock injects a custom clock primarily for tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHealthHandlers constructs the health handler set.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Healthz reports process liveness with build metadata. It never consults
// downstream dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()

	payload := map[string]any{
		"status":    domain.HealthStatusOK,
		"timestamp": now.Format(time.RFC3339),
	}
	if h.build.Version != "" {
		payload["version"] = h.build.Version
	}
	if h.build.CommitSHA != "" {
		payload["commitSha"] = h.build.CommitSHA
	}
	if h.build.Environment != "" {
		payload["environment"] = h.build.Environment
	}
	if !h.build.StartedAt.IsZero() {
		payload["uptime"] = now.Sub(h.build.StartedAt).String()
	}

	writeJSONResponse(w, http.StatusOK, payload)
}

// Readyz reports readiness based on downstream dependency probes. Degraded
// or failing dependencies yield 503 so load balancers stop routing here.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.system == nil {
		writeJSONResponse(w, http.StatusOK, map[string]any{
			"status":    domain.HealthStatusOK,
			"timestamp": h.clock().UTC().Format(time.RFC3339),
		})
		return
	}

	report, err := h.system.Health(r.Context())
	if err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, map[string]any{
			"status":  domain.HealthStatusError,
			"details": []string{"health collection failed"},
		})
		return
	}

	checks := make(map[string]map[string]any, len(report.Checks))
	var details []string
	for name, check := range report.Checks {
		entry := map[string]any{
			"status": check.Status,
		}
		if check.Latency > 0 {
			entry["latencyMs"] = check.Latency.Milliseconds()
		}
		if check.Error != "" {
			entry["error"] = check.Error
			details = append(details, name+": "+check.Error)
		}
		checks[name] = entry
	}
	sort.Strings(details)

	payload := map[string]any{
		"status":  report.Status,
		"checks":  checks,
		"details": details,
	}
	if report.Version != "" {
		payload["version"] = report.Version
	}
	if report.Environment != "" {
		payload["environment"] = report.Environment
	}
	if report.Uptime > 0 {
		payload["uptimeSeconds"] = int64(report.Uptime.Seconds())
	}

	status := http.StatusOK
	if report.Status != domain.HealthStatusOK {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, payload)
}
