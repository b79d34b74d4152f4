package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/mullenkamp/nz-allo-usage-tools/internal/infrastructure"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/pipeline"
	"github.com/mullenkamp/nz-allo-usage-tools/pkg/contracts"
)

// HealthResponse is the body of GET /healthz
type HealthResponse struct {
	Status    string                      `json:"status"`
	Version   string                      `json:"version"`
	SessionID string                      `json:"session_id"`
	Cache     pipeline.Stats              `json:"cache"`
	Runtime   infrastructure.RuntimeStats `json:"runtime"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	timeseries *TimeseriesHandler
	started    time.Time
	logger     *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(timeseries *TimeseriesHandler, started time.Time, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{
		timeseries: timeseries,
		started:    started,
		logger:     logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck handles GET /healthz
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.timeseries.mu.Lock()
	stats := h.timeseries.runner.Stats()
	h.timeseries.mu.Unlock()

	render.JSON(w, r, HealthResponse{
		Status:    "ok",
		Version:   contracts.Version,
		SessionID: h.timeseries.runner.ID(),
		Cache:     stats,
		Runtime:   infrastructure.ReadRuntimeStats(h.started),
	})
}
