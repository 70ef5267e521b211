package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker is implemented by oracles that can report readiness.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Directory string `json:"directory"`
	Oracle    string `json:"oracle"`
	Uptime    string `json:"uptime"`
}

// HealthHandler checks the employee directory and, when it can, the oracle.
type HealthHandler struct {
	directory Pinger
	oracle    any
	started   time.Time
	timeout   time.Duration
}

// NewHealthHandler creates a health handler. oracle is checked only if it
// implements HealthChecker.
func NewHealthHandler(directory Pinger, oracle any) *HealthHandler {
	return &HealthHandler{
		directory: directory,
		oracle:    oracle,
		started:   time.Now(),
		timeout:   3 * time.Second,
	}
}

// RegisterHealth mounts GET /health.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.HandleHealth)
}

// HandleHealth reports 200 when the directory answers and the oracle is
// either healthy or cannot be checked, and 503 otherwise.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp := HealthResponse{
		Status:    "ok",
		Directory: "ok",
		Oracle:    "unknown",
		Uptime:    time.Since(h.started).Round(time.Second).String(),
	}
	status := http.StatusOK

	if err := h.directory.Ping(ctx); err != nil {
		slog.Warn("Directory health check failed", "error", err)
		resp.Directory = "unavailable"
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	if hc, ok := h.oracle.(HealthChecker); ok {
		if err := hc.Health(ctx); err != nil {
			slog.Warn("Oracle health check failed", "error", err)
			resp.Oracle = "unavailable"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		} else {
			resp.Oracle = "ok"
		}
	}
	JSON(w, status, resp)
}
