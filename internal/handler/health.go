package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/miniapp-auth/internal/service"
)

// HealthChecker probes backing services. Implemented by
// *service.HealthService.
type HealthChecker interface {
	Check(ctx context.Context) service.HealthStatus
}

type HealthHandler struct {
	health HealthChecker
	logger *slog.Logger
}

func NewHealthHandler(health HealthChecker, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{health: health, logger: logger}
}

// HealthResponse is the body of a healthy probe. Timestamp is unix seconds.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

// HandleHealth reports whether the database is reachable.
//
// HTTP: GET /health
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := h.health.Check(r.Context())
	if !status.Healthy() {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error:   "service_unavailable",
			Message: "Database connection is not healthy",
		})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: status.CheckedAt.Unix(),
	})
}
