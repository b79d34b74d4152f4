package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mullenkamp/nz-allo-usage-tools/internal/allocation"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/catalog"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/config"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/exporter"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/gapfill"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/infrastructure"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/pipeline"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/reconcile"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/storage"
	handlers "github.com/mullenkamp/nz-allo-usage-tools/internal/transport/http"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/usage"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/validation"
	ws "github.com/mullenkamp/nz-allo-usage-tools/internal/websocket"
	"github.com/mullenkamp/nz-allo-usage-tools/pkg/contracts"
	"github.com/mullenkamp/nz-allo-usage-tools/pkg/contracts/domain"
)

// Application holds the wired components of one process
type Application struct {
	Config   *config.Config
	Logger   *slog.Logger
	OTel     *infrastructure.OTelProviders
	Metrics  *infrastructure.BusinessMetrics
	Backend  storage.Backend
	Session  *pipeline.Session
	Exporter *exporter.Exporter
	Progress *ws.Hub
	Server   *http.Server

	started time.Time
}

// PipelineOptions maps configuration onto session options
func PipelineOptions(cfg *config.Config) (pipeline.Options, error) {
	window, err := domain.NewWindow(cfg.Window.From, cfg.Window.To)
	if err != nil {
		return pipeline.Options{}, err
	}
	split, err := allocation.ParseSplitMode(cfg.Pipeline.SplitMode)
	if err != nil {
		return pipeline.Options{}, err
	}
	metered, err := reconcile.ParseMode(cfg.Pipeline.MeteredMode)
	if err != nil {
		return pipeline.Options{}, err
	}

	return pipeline.Options{
		Window: window,
		Filter: catalog.FilterOptions{
			Window:               window,
			PermitIDs:            cfg.Filter.PermitIDs,
			WapIDs:               cfg.Filter.WapIDs,
			OnlyConsumptive:      cfg.Filter.OnlyConsumptive,
			IncludeHydroElectric: cfg.Filter.IncludeHydroElectric,
			UseTypeMapping:       cfg.Filter.UseTypeMapping,
		},
		SplitMode:      split,
		MeteredMode:    metered,
		UsageAlloRatio: cfg.Pipeline.UsageAlloRatio,
		Clean: usage.CleanOptions{
			SuppressSpikes: cfg.Pipeline.SuppressSpikes,
			SpikeThreshold: cfg.Pipeline.SpikeThreshold,
		},
		Gapfill: gapfill.Options{
			BufferDistance: cfg.Pipeline.BufferDistance,
			MinMonths:      cfg.Pipeline.MinMonths,
		},
		Fetch: storage.FetchOptions{
			Concurrency: cfg.Fetch.Concurrency,
			RPS:         cfg.Fetch.RPS,
			Burst:       cfg.Fetch.Burst,
			Timeout:     cfg.Fetch.Timeout,
		},
		DepletionConcurrency: cfg.Pipeline.DepletionConcurrency,
	}, nil
}

// StorageConfig maps the sources section onto a storage driver config
func StorageConfig(cfg config.SourcesConfig) storage.Config {
	return storage.Config{
		Driver:      storage.Driver(cfg.Driver),
		Bucket:      cfg.Bucket,
		Region:      cfg.Region,
		Endpoint:    cfg.Endpoint,
		PathStyle:   cfg.PathStyle,
		PermitsKey:  cfg.PermitsKey,
		UsagePrefix: cfg.UsagePrefix,
		PermitsPath: cfg.PermitsPath,
		UsageDir:    cfg.UsageDir,
		SQLitePath:  cfg.SQLitePath,
		PostgresDSN: cfg.PostgresDSN,
	}
}

// New wires telemetry, storage and the pipeline session. The caller owns
// logger setup; Stop releases everything New opened.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Application{
		Config:  cfg,
		Logger:  logger.With(slog.String("component", "app")),
		started: time.Now(),
	}

	opts, err := PipelineOptions(cfg)
	if err != nil {
		return nil, fmt.Errorf("pipeline options: %w", err)
	}

	if a.OTel, err = infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(cfg.Telemetry), logger); err != nil {
		return nil, fmt.Errorf("initialize telemetry: %w", err)
	}
	if a.Metrics, err = infrastructure.CreateBusinessMetrics(a.OTel.Meter); err != nil {
		a.shutdownTelemetry(ctx)
		return nil, fmt.Errorf("create metrics: %w", err)
	}
	if err := infrastructure.RegisterRuntimeMetrics(a.OTel.Meter, a.started); err != nil {
		a.shutdownTelemetry(ctx)
		return nil, fmt.Errorf("register runtime metrics: %w", err)
	}

	if strings.EqualFold(cfg.Sources.Driver, string(storage.DriverFile)) {
		err := validation.NewFileValidator(logger).ValidateFileSource(cfg.Sources.PermitsPath, cfg.Sources.UsageDir)
		if err != nil {
			a.shutdownTelemetry(ctx)
			return nil, fmt.Errorf("validate file source: %w", err)
		}
	}
	if a.Backend, err = storage.Open(ctx, StorageConfig(cfg.Sources)); err != nil {
		a.shutdownTelemetry(ctx)
		return nil, fmt.Errorf("open storage: %w", err)
	}

	a.Progress = ws.NewHub(logger)
	a.Session, err = pipeline.NewSession(pipeline.Deps{
		Permits:  a.Backend,
		Usage:    a.Backend,
		Recorder: pipeline.Recorders(a.Metrics, ws.NewProgress(a.Progress)),
		Observer: a.Metrics,
		Tracer:   a.OTel.Tracer,
	}, opts, logger)
	if err != nil {
		_ = a.Backend.Close()
		a.shutdownTelemetry(ctx)
		return nil, fmt.Errorf("create session: %w", err)
	}
	a.Exporter = exporter.New(exporter.DefaultOptions(), logger)
	a.Progress.Start()

	a.Logger.InfoContext(ctx, "application initialized",
		slog.String("version", contracts.Version),
		slog.String("driver", cfg.Sources.Driver),
		slog.String("session_id", a.Session.ID()),
	)
	return a, nil
}

// Run executes one request and records it in the run metrics. Logs of the
// run share one trace_id.
func (a *Application) Run(ctx context.Context, req pipeline.Request) (*domain.ResultTable, error) {
	ctx = infrastructure.EnsureTraceID(ctx)
	start := time.Now()
	table, err := a.Session.Run(ctx, req)
	a.Metrics.RecordRun(ctx, string(req.Frequency), time.Since(start), err)
	return table, err
}

// Handler builds the HTTP API over the session
func (a *Application) Handler() http.Handler {
	return handlers.NewRouter(handlers.RouterDeps{
		Runner:         a.Session,
		Exporter:       a.Exporter,
		Server:         a.Config.Server,
		Tracer:         a.OTel.Tracer,
		Metrics:        a.Metrics,
		PrometheusHTTP: a.OTel.PrometheusHTTP,
		Progress:       a.Progress,
		Started:        a.started,
		IncludeStack:   a.Config.Telemetry.Environment == "development",
	}, a.Logger)
}

// Serve listens on the configured port until ctx is cancelled or SIGINT or
// SIGTERM arrives, then shuts down gracefully
func (a *Application) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Handler(),
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
		BaseContext:    func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.InfoContext(ctx, "server listening", slog.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		a.Logger.Info("shutdown requested")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return <-errCh
}

// Stop closes storage and flushes telemetry
func (a *Application) Stop(ctx context.Context) error {
	var errs []error
	if a.Progress != nil {
		a.Progress.Stop()
	}
	if a.Backend != nil {
		if err := a.Backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
	}
	if a.OTel != nil {
		if err := a.OTel.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.Logger.InfoContext(ctx, "application stopped", slog.Duration("uptime", time.Since(a.started)))
	return errors.Join(errs...)
}

func (a *Application) shutdownTelemetry(ctx context.Context) {
	if err := a.OTel.Shutdown(ctx); err != nil {
		a.Logger.WarnContext(ctx, "telemetry shutdown failed", slog.String("error", err.Error()))
	}
}
