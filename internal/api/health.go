package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/chatsense/chatsense/internal/analyzer"
	"github.com/chatsense/chatsense/internal/store"
	"github.com/go-chi/chi/v5"
)

// HealthHandler reports server, database, and analyzer status.
type HealthHandler struct {
	repo     store.Repository
	analyzer analyzer.Analyzer
	timeout  time.Duration
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(repo store.Repository, an analyzer.Analyzer, timeout time.Duration) *HealthHandler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthHandler{repo: repo, analyzer: an, timeout: timeout}
}

// Health returns the health status of the server and its dependencies.
// An unready analyzer degrades its check but not the status code; the
// chat pipeline runs without it.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status":    "healthy",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	ready := h.analyzer.Ready(ctx)
	status["analyzer_ready"] = ready
	if ready {
		checks["analyzer"] = "ok"
	} else {
		checks["analyzer"] = "unavailable"
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
