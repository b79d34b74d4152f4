package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel/trace"

	"github.com/mullenkamp/nz-allo-usage-tools/internal/config"
	apperrors "github.com/mullenkamp/nz-allo-usage-tools/internal/errors"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/exporter"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/infrastructure"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/middleware"
	ws "github.com/mullenkamp/nz-allo-usage-tools/internal/websocket"
)

// RouterDeps are the collaborators of the HTTP API
type RouterDeps struct {
	Runner   Runner
	Exporter *exporter.Exporter
	Server   config.ServerConfig
	Tracer   trace.Tracer
	Metrics  *infrastructure.BusinessMetrics
	// PrometheusHTTP serves /metrics when set
	PrometheusHTTP http.Handler
	// Progress serves /api/v1/ws when set
	Progress     *ws.Hub
	Started      time.Time
	IncludeStack bool
}

// NewRouter wires middleware and routes:
//
//	GET  /healthz
//	GET  /metrics
//	GET  /api/v1/timeseries
//	POST /api/v1/timeseries
//	POST /api/v1/reload
//	GET  /api/v1/ws
func NewRouter(deps RouterDeps, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Exporter == nil {
		deps.Exporter = exporter.New(exporter.DefaultOptions(), logger)
	}
	if deps.Started.IsZero() {
		deps.Started = time.Now()
	}
	errorHandler := apperrors.NewErrorHandler(logger, deps.IncludeStack)
	timeseries := NewTimeseriesHandler(deps.Runner, deps.Exporter, deps.Metrics, errorHandler, logger)
	health := NewHealthHandler(timeseries, deps.Started, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewOTelMiddleware(deps.Tracer, deps.Metrics).Handler)
	r.Use(apperrors.NewErrorMiddleware(errorHandler, logger).Handler)
	r.Use(middleware.SecurityHeaders)
	r.NotFound(errorHandler.NotFound)
	r.MethodNotAllowed(errorHandler.MethodNotAllowed)

	r.Get("/healthz", health.HealthCheck)
	if deps.PrometheusHTTP != nil {
		r.Method(http.MethodGet, "/metrics", deps.PrometheusHTTP)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if rl := deps.Server.RateLimit; rl.Enabled {
			r.Use(middleware.NewRateLimiter(rl.RPS, rl.Burst, errorHandler, logger).Handler)
		}
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(deps.Server.RequestTimeout))
			r.Use(render.SetContentType(render.ContentTypeJSON))
			timeseries.RegisterRoutes(r)
		})
		if deps.Progress != nil {
			r.Get("/ws", NewProgressHandler(deps.Progress, deps.Server.AllowedOrigins, logger).ServeWS)
		}
	})
	return r
}
