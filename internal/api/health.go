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

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	snapshots Pinger
	backend   string
	timeout   time.Duration
}

// NewHealthHandler creates a health handler that checks the snapshot
// backend named backend.
func NewHealthHandler(snapshots Pinger, backend string) *HealthHandler {
	return &HealthHandler{snapshots: snapshots, backend: backend, timeout: 5 * time.Second}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status":  "healthy",
		"backend": h.backend,
		"checks":  checks,
	}
	statusCode := http.StatusOK

	if err := h.snapshots.Ping(ctx); err != nil {
		slog.Error("Health check failed", "backend", h.backend, "error", err)
		status["status"] = "degraded"
		checks["snapshots"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["snapshots"] = "ok"
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/api/health", h.Health)
}
