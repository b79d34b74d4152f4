package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mullenkamp/nz-allo-usage-tools/internal/allocation"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/catalog"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/depletion"
	apperrors "github.com/mullenkamp/nz-allo-usage-tools/internal/errors"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/gapfill"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/reconcile"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/spatial"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/storage"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/usage"
	"github.com/mullenkamp/nz-allo-usage-tools/pkg/contracts/domain"
)

// Deps are the collaborators a session runs against
type Deps struct {
	Permits storage.PermitSource
	Usage   storage.UsageStore

	// Joiner and Models default to the built-in buffer join and Theis model
	Joiner spatial.Joiner
	Models depletion.Factory

	Recorder Recorder
	Observer storage.FetchObserver
	Tracer   trace.Tracer
}

// Stats counts memo activity over the session's life
type Stats struct {
	Hits   int `json:"hits"`
	Misses int `json:"misses"`
	Purged int `json:"purged"`
}

// Session runs requests against one permit source and usage store, memoizing
// every stage. A session must not be shared between goroutines.
type Session struct {
	id        string
	permits   storage.PermitSource
	fetcher   *storage.Fetcher
	catalog   *catalog.Catalog
	estimator *gapfill.Estimator
	depletion *depletion.Calculator

	opts     Options
	recorder Recorder
	tracer   trace.Tracer
	logger   *slog.Logger

	memo    *memo
	version uint64
	stats   Stats
}

// NewSession creates a session
func NewSession(deps Deps, opts Options, logger *slog.Logger) (*Session, error) {
	if deps.Permits == nil {
		return nil, errors.New("permit source required")
	}
	if deps.Usage == nil {
		return nil, errors.New("usage store required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if deps.Tracer == nil {
		deps.Tracer = defaultTracer()
	}
	opts = opts.withDefaults()
	id := uuid.New().String()
	logger = logger.With(slog.String("component", "pipeline"), slog.String("session_id", id))

	return &Session{
		id:        id,
		permits:   deps.Permits,
		fetcher:   storage.NewFetcher(deps.Usage, opts.Fetch, deps.Observer, logger),
		catalog:   catalog.New(logger),
		estimator: gapfill.NewEstimator(deps.Joiner, opts.Gapfill, logger),
		depletion: depletion.New(deps.Models, opts.DepletionConcurrency, logger),
		opts:      opts,
		recorder:  deps.Recorder,
		tracer:    deps.Tracer,
		logger:    logger,
		memo:      newMemo(),
		version:   1,
	}, nil
}

// ID returns the session identifier used in logs
func (s *Session) ID() string { return s.id }

// Options returns the effective session options
func (s *Session) Options() Options { return s.opts }

// Stats returns memo counters
func (s *Session) Stats() Stats { return s.stats }

// Reload forgets every cached stage, including the raw usage fetch, so the
// next run re-reads the permit source and the usage store
func (s *Session) Reload() {
	s.version++
	s.memo.purgeVersionsBefore(s.version)
	s.logger.Info("session reloaded", "catalog_version", s.version)
}

// Run computes the requested datasets at the requested frequency and grouping
func (s *Session) Run(ctx context.Context, req Request) (*domain.ResultTable, error) {
	req, err := req.normalize()
	if err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "pipeline.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("session.id", s.id),
			attribute.String("request.frequency", string(req.Frequency)),
			attribute.StringSlice("request.group_by", req.GroupBy),
		),
	)
	defer span.End()
	start := time.Now()

	if n := s.memo.switchTo(req.Frequency); n > 0 {
		s.stats.Purged += n
		s.logger.DebugContext(ctx, "purged frequency-dependent stages", "frequency", req.Frequency, "entries", n)
	}

	ratio := s.opts.UsageAlloRatio
	if req.UsageAlloRatio > 0 {
		ratio = req.UsageAlloRatio
	}
	sc := stageContext{freq: req.Frequency.Internal(), ratio: ratio}

	cat, err := s.catalogTable(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	parts := make([]part, 0, len(req.Datasets))
	for _, kind := range req.Datasets {
		build, ok := datasetStages[kind]
		if !ok {
			return nil, apperrors.NewValidation("pipeline", "unknown dataset %s", kind)
		}
		values, err := build(ctx, s, sc)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		parts = append(parts, part{kind: kind, values: values})
	}

	table, err := assemble(req, cat, parts)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.logger.InfoContext(ctx, "request completed",
		"datasets", len(req.Datasets),
		"frequency", req.Frequency,
		"rows", len(table.Rows),
		"duration", time.Since(start),
	)
	return table, nil
}

// stageContext is the request-derived input of frequency-dependent stages
type stageContext struct {
	freq  domain.Frequency
	ratio float64
}

func (sc stageContext) at(freq domain.Frequency) stageContext {
	sc.freq = freq
	return sc
}

func (sc stageContext) variant() string {
	return "ratio=" + strconv.FormatFloat(sc.ratio, 'g', -1, 64)
}

func (s *Session) key(stage, variant string, freq domain.Frequency) stageKey {
	return stageKey{stage: stage, variant: variant, freq: freq, version: s.version}
}

// catalogTable decodes and filters the permit source and derives missing
// depletion ratios
func (s *Session) catalogTable(ctx context.Context) (catalog.Table, error) {
	return memoize(ctx, s, s.key("catalog", "", noFrequency), func(ctx context.Context) (catalog.Table, error) {
		records, err := s.permits.Permits(ctx)
		if err != nil {
			return catalog.Table{}, apperrors.NewUpstream("permit_source", "read permits", err)
		}
		t, err := s.catalog.Filter(ctx, s.catalog.Decode(ctx, records), s.opts.Filter)
		if err != nil {
			return catalog.Table{}, err
		}
		t.Points, err = s.depletion.SDRatios(ctx, t.Points)
		if err != nil {
			return catalog.Table{}, err
		}
		return t, nil
	})
}

func (s *Session) allocation(ctx context.Context, freq domain.Frequency) ([]domain.AllocationRow, error) {
	return memoize(ctx, s, s.key("allocation", string(s.opts.SplitMode), freq), func(ctx context.Context) ([]domain.AllocationRow, error) {
		cat, err := s.catalogTable(ctx)
		if err != nil {
			return nil, err
		}
		series := allocation.BuildSeries(cat.Permits, freq, s.opts.Window)
		return allocation.Apportion(series, cat.Points, s.opts.SplitMode), nil
	})
}

// rawUsage is fetched once per catalog version regardless of frequency
func (s *Session) rawUsage(ctx context.Context) ([]domain.UsageReading, error) {
	return memoize(ctx, s, s.key("usage_raw", "", noFrequency), func(ctx context.Context) ([]domain.UsageReading, error) {
		cat, err := s.catalogTable(ctx)
		if err != nil {
			return nil, err
		}
		return s.fetcher.Fetch(ctx, cat.WapIDs(), s.opts.Window.From, s.opts.Window.To)
	})
}

func (s *Session) dailyUsage(ctx context.Context) ([]domain.UsageRow, error) {
	return memoize(ctx, s, s.key("usage_daily", "", noFrequency), func(ctx context.Context) ([]domain.UsageRow, error) {
		raw, err := s.rawUsage(ctx)
		if err != nil {
			return nil, err
		}
		rows, ev := usage.Clean(raw, s.opts.Clean)
		s.quality(ctx, EventNegativeClipped, ev.Clipped)
		s.quality(ctx, EventSpikeSuppressed, ev.Spikes)
		s.quality(ctx, EventMissingReading, ev.Dropped)
		return rows, nil
	})
}

// splitUsage is point usage at freq apportioned to the permits sharing each point
func (s *Session) splitUsage(ctx context.Context, sc stageContext) ([]domain.SplitUsageRow, error) {
	return memoize(ctx, s, s.key("usage", sc.variant(), sc.freq), func(ctx context.Context) ([]domain.SplitUsageRow, error) {
		daily, err := s.dailyUsage(ctx)
		if err != nil {
			return nil, err
		}
		alloc, err := s.allocation(ctx, sc.freq)
		if err != nil {
			return nil, err
		}
		rows, outliers := usage.Apportion(alloc, usage.Resample(daily, sc.freq), sc.ratio)
		s.quality(ctx, EventUsageOutlier, outliers)
		return rows, nil
	})
}

func (s *Session) meteredAllocation(ctx context.Context, sc stageContext) ([]domain.MeteredAllocationRow, error) {
	return memoize(ctx, s, s.key("metered_allocation", sc.variant()+","+string(s.opts.MeteredMode), sc.freq), func(ctx context.Context) ([]domain.MeteredAllocationRow, error) {
		alloc, err := s.allocation(ctx, sc.freq)
		if err != nil {
			return nil, err
		}
		split, err := s.splitUsage(ctx, sc)
		if err != nil {
			return nil, err
		}
		return reconcile.MeteredAllocation(alloc, split, s.opts.MeteredMode), nil
	})
}

type estimateResult struct {
	rows   []domain.EstimateRow
	report gapfill.Report
}

// monthlyEstimate runs the donor transfer, always on the monthly series
func (s *Session) monthlyEstimate(ctx context.Context, sc stageContext) (estimateResult, error) {
	sc = sc.at(domain.Monthly)
	return memoize(ctx, s, s.key("estimate_monthly", sc.variant(), sc.freq), func(ctx context.Context) (estimateResult, error) {
		cat, err := s.catalogTable(ctx)
		if err != nil {
			return estimateResult{}, err
		}
		alloc, err := s.allocation(ctx, sc.freq)
		if err != nil {
			return estimateResult{}, err
		}
		split, err := s.splitUsage(ctx, sc)
		if err != nil {
			return estimateResult{}, err
		}
		metered, err := s.meteredAllocation(ctx, sc)
		if err != nil {
			return estimateResult{}, err
		}
		rows, report, err := s.estimator.Estimate(ctx, gapfill.Inputs{
			Points:  cat.Points,
			Permits: cat.Permits,
			Alloc:   alloc,
			Metered: metered,
			Usage:   split,
		})
		if err != nil {
			return estimateResult{}, err
		}
		s.quality(ctx, EventMissingDonor, report.Missing)
		return estimateResult{rows: rows, report: report}, nil
	})
}

func (s *Session) dailyEstimate(ctx context.Context, sc stageContext) ([]domain.EstimateRow, error) {
	return memoize(ctx, s, s.key("estimate_daily", sc.variant(), domain.Daily), func(ctx context.Context) ([]domain.EstimateRow, error) {
		monthly, err := s.monthlyEstimate(ctx, sc)
		if err != nil {
			return nil, err
		}
		rows, err := gapfill.ExpandDaily(monthly.rows, s.opts.Window)
		if err != nil {
			return nil, fmt.Errorf("expand estimates to daily: %w", err)
		}
		return rows, nil
	})
}

// usageEstimate is the estimate series at freq with metered usage laid over it
func (s *Session) usageEstimate(ctx context.Context, sc stageContext) ([]domain.EstimateRow, error) {
	return memoize(ctx, s, s.key("usage_estimate", sc.variant(), sc.freq), func(ctx context.Context) ([]domain.EstimateRow, error) {
		var est []domain.EstimateRow
		switch sc.freq {
		case domain.Monthly:
			monthly, err := s.monthlyEstimate(ctx, sc)
			if err != nil {
				return nil, err
			}
			est = monthly.rows
		case domain.Daily:
			daily, err := s.dailyEstimate(ctx, sc)
			if err != nil {
				return nil, err
			}
			est = daily
		default:
			daily, err := s.dailyEstimate(ctx, sc)
			if err != nil {
				return nil, err
			}
			est = gapfill.SumToFrequency(daily, sc.freq)
		}
		actual, err := s.splitUsage(ctx, sc)
		if err != nil {
			return nil, err
		}
		return gapfill.Override(est, actual), nil
	})
}

func (s *Session) depletionRate(ctx context.Context, sc stageContext) ([]domain.DepletionRow, error) {
	return memoize(ctx, s, s.key("depletion_rate", sc.variant(), sc.freq), func(ctx context.Context) ([]domain.DepletionRow, error) {
		cat, err := s.catalogTable(ctx)
		if err != nil {
			return nil, err
		}
		daily, err := s.usageEstimate(ctx, sc.at(domain.Daily))
		if err != nil {
			return nil, err
		}
		return s.depletion.Calculate(ctx, cat.Points, cat.Permits, daily, sc.freq)
	})
}
