package api

import (
	"context"
	"net/http"

	"github.com/phrazzld/postpilot/internal/api/shared"
	"github.com/phrazzld/postpilot/internal/platform/logger"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves GET /health.
type HealthHandler struct {
	engine TaskEngine
	db     Pinger
}

// NewHealthHandler creates a HealthHandler. db may be nil when storage is
// in memory.
func NewHealthHandler(engine TaskEngine, db Pinger) *HealthHandler {
	return &HealthHandler{engine: engine, db: db}
}

// Health reports engine statistics and database reachability. It answers
// 503 when the engine is not running or the database is unreachable.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:   "ok",
		Database: "memory",
		Engine:   h.engine.Stats(),
	}
	status := http.StatusOK

	if h.db != nil {
		resp.Database = "ok"
		if err := h.db.Ping(r.Context()); err != nil {
			logger.FromContext(r.Context()).Warn("health check: database unreachable", "error", err)
			resp.Database = "unavailable"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}
	if !resp.Engine.Running {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}

	shared.RespondWithJSON(w, r, status, resp)
}
