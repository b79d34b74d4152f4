package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apperrors "github.com/mullenkamp/nz-allo-usage-tools/internal/errors"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/exporter"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/infrastructure"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/pipeline"
	"github.com/mullenkamp/nz-allo-usage-tools/pkg/contracts/domain"
)

// Runner executes pipeline requests against cached session state
type Runner interface {
	ID() string
	Run(ctx context.Context, req pipeline.Request) (*domain.ResultTable, error)
	Reload()
	Stats() pipeline.Stats
}

// TimeseriesRequest is the query of GET and POST /timeseries
type TimeseriesRequest struct {
	Datasets       []string `json:"datasets" validate:"required,min=1,dive,required"`
	Freq           string   `json:"freq" validate:"required"`
	GroupBy        []string `json:"group_by"`
	UsageAlloRatio float64  `json:"usage_allo_ratio" validate:"gte=0"`
	Format         string   `json:"format" validate:"omitempty,oneof=csv xlsx json"`
}

// TimeseriesHandler serves pipeline results. The session is not safe for
// concurrent use, so runs are serialized.
type TimeseriesHandler struct {
	mu       sync.Mutex
	runner   Runner
	exporter *exporter.Exporter
	metrics  *infrastructure.BusinessMetrics
	errors   *apperrors.ErrorHandler
	validate *validator.Validate
	logger   *slog.Logger
}

// NewTimeseriesHandler creates the handler; metrics may be nil
func NewTimeseriesHandler(runner Runner, exp *exporter.Exporter, metrics *infrastructure.BusinessMetrics, errorHandler *apperrors.ErrorHandler, logger *slog.Logger) *TimeseriesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TimeseriesHandler{
		runner:   runner,
		exporter: exp,
		metrics:  metrics,
		errors:   errorHandler,
		validate: validator.New(),
		logger:   logger.With(slog.String("handler", "timeseries")),
	}
}

// RegisterRoutes mounts the timeseries routes on r
func (h *TimeseriesHandler) RegisterRoutes(r chi.Router) {
	r.Get("/timeseries", h.GetTimeseries)
	r.Post("/timeseries", h.PostTimeseries)
	r.Post("/reload", h.Reload)
}

// GetTimeseries handles GET /api/v1/timeseries. Datasets and group_by may
// repeat or be comma separated.
func (h *TimeseriesHandler) GetTimeseries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := TimeseriesRequest{
		Datasets: q["datasets"],
		Freq:     q.Get("freq"),
		GroupBy:  q["group_by"],
		Format:   strings.ToLower(q.Get("format")),
	}
	if v := q.Get("usage_allo_ratio"); v != "" {
		ratio, err := strconv.ParseFloat(v, 64)
		if err != nil {
			h.errors.HandleError(w, r, apperrors.NewValidation("request", "usage_allo_ratio %q is not a number", v))
			return
		}
		req.UsageAlloRatio = ratio
	}
	h.serve(w, r, req)
}

// PostTimeseries handles POST /api/v1/timeseries with a JSON body
func (h *TimeseriesHandler) PostTimeseries(w http.ResponseWriter, r *http.Request) {
	var req TimeseriesRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.errors.HandleError(w, r, apperrors.NewValidation("request", "invalid JSON body: %v", err))
		return
	}
	req.Format = strings.ToLower(req.Format)
	h.serve(w, r, req)
}

// Reload handles POST /api/v1/reload, dropping every cached stage
func (h *TimeseriesHandler) Reload(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	h.runner.Reload()
	stats := h.runner.Stats()
	h.mu.Unlock()

	h.logger.InfoContext(r.Context(), "session reloaded", slog.String("session_id", h.runner.ID()))
	render.JSON(w, r, map[string]interface{}{
		"session_id": h.runner.ID(),
		"cache":      stats,
	})
}

func (h *TimeseriesHandler) serve(w http.ResponseWriter, r *http.Request, body TimeseriesRequest) {
	ctx := r.Context()
	if err := h.validate.Struct(body); err != nil {
		h.errors.HandleError(w, r, apperrors.NewValidation("request", "%v", err))
		return
	}
	req, err := pipeline.ParseRequest(body.Datasets, body.Freq, body.GroupBy)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	req.UsageAlloRatio = body.UsageAlloRatio
	format, err := exporter.ParseFormat(body.Format)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	if body.Format == "" {
		format = exporter.FormatJSON
	}

	start := time.Now()
	h.mu.Lock()
	table, err := h.runner.Run(ctx, req)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.RecordRun(ctx, string(req.Frequency), time.Since(start), err)
	}
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	if format == exporter.FormatXLSX {
		w.Header().Set("Content-Disposition", `attachment; filename="timeseries.xlsx"`)
	}
	if err := h.exporter.Write(ctx, w, table, format); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response",
			slog.String("format", string(format)),
			slog.String("error", err.Error()))
	}
}
