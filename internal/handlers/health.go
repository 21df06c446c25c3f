package handlers

import (
	"net/http"
	"sort"
	"strings"
	"time"

	domain "github.com/optimistics/storefront/internal/domain"
	"github.com/optimistics/storefront/internal/services"
)

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	system services.SystemService
	build  services.BuildInfo
	now    func() time.Time
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// WithHealthSystemService sets the dependency checker used by /readyz.
func WithHealthSystemService(system services.SystemService) HealthOption {
	return func(h *HealthHandlers) {
		h.system = system
	}
}

// WithHealthBuildInfo sets the version metadata reported by /healthz.
func WithHealthBuildInfo(info services.BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthClock overrides the clock, mainly for tests.
func WithHealthClock(now func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHealthHandlers constructs probe handlers. Without a system service /readyz only reports liveness.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.now()
	}
	return h
}

type healthResponse struct {
	Status      domain.HealthStatus            `json:"status"`
	Version     string                         `json:"version,omitempty"`
	Environment string                         `json:"environment,omitempty"`
	Uptime      string                         `json:"uptime"`
	Timestamp   string                         `json:"timestamp"`
	Checks      map[string]healthCheckResponse `json:"checks,omitempty"`
	Details     []string                       `json:"details,omitempty"`
}

type healthCheckResponse struct {
	Status    domain.HealthStatus `json:"status"`
	Detail    string              `json:"detail,omitempty"`
	LatencyMS int64               `json:"latencyMs"`
	CheckedAt string              `json:"checkedAt,omitempty"`
}

// Healthz reports process liveness without touching dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.now().UTC()
	writeJSONResponse(w, http.StatusOK, healthResponse{
		Status:      domain.HealthStatusOK,
		Version:     h.build.Version,
		Environment: h.build.Environment,
		Uptime:      now.Sub(h.build.StartedAt).Truncate(time.Second).String(),
		Timestamp:   now.Format(time.RFC3339),
	})
}

// Readyz probes dependencies and answers 503 unless every check is ok.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.system == nil {
		h.Healthz(w, r)
		return
	}
	report, err := h.system.HealthReport(r.Context())
	if err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, healthResponse{
			Status:    domain.HealthStatusError,
			Timestamp: h.now().UTC().Format(time.RFC3339),
			Details:   []string{err.Error()},
		})
		return
	}

	resp := healthResponse{
		Status:      report.Status,
		Version:     report.Version,
		Environment: report.Environment,
		Uptime:      report.Uptime.Truncate(time.Second).String(),
		Timestamp:   report.GeneratedAt.UTC().Format(time.RFC3339),
		Checks:      make(map[string]healthCheckResponse, len(report.Checks)),
	}
	if report.GeneratedAt.IsZero() {
		resp.Timestamp = h.now().UTC().Format(time.RFC3339)
	}
	names := make([]string, 0, len(report.Checks))
	for name := range report.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		check := report.Checks[name]
		item := healthCheckResponse{
			Status:    check.Status,
			Detail:    strings.TrimSpace(check.Detail),
			LatencyMS: check.Latency.Milliseconds(),
		}
		if !check.CheckedAt.IsZero() {
			item.CheckedAt = check.CheckedAt.UTC().Format(time.RFC3339)
		}
		resp.Checks[name] = item
		if check.Status != domain.HealthStatusOK && item.Detail != "" {
			resp.Details = append(resp.Details, name+": "+item.Detail)
		}
	}

	status := http.StatusOK
	if report.Status != domain.HealthStatusOK {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, resp)
}
