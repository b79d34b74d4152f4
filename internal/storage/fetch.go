package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	apperrors "github.com/mullenkamp/nz-allo-usage-tools/internal/errors"
	"github.com/mullenkamp/nz-allo-usage-tools/pkg/contracts/domain"
)

// FetchOptions bounds concurrent usage fetching
type FetchOptions struct {
	Concurrency int
	// RPS limits fetches per second; zero or less means unlimited
	RPS     float64
	Burst   int
	Timeout time.Duration
}

// DefaultFetchOptions returns the standard fetch limits
func DefaultFetchOptions() FetchOptions {
	return FetchOptions{Concurrency: 8, RPS: 0, Burst: 1, Timeout: 30 * time.Second}
}

// FetchObserver is notified after every point fetch
type FetchObserver interface {
	ObserveFetch(ctx context.Context, wapID string, rows int, err error)
}

// Fetcher pulls raw usage for many points concurrently. Failures are not
// retried.
type Fetcher struct {
	store    UsageStore
	opts     FetchOptions
	limiter  *rate.Limiter
	observer FetchObserver
	logger   *slog.Logger
}

// NewFetcher creates a fetcher over store. observer may be nil.
func NewFetcher(store UsageStore, opts FetchOptions, observer FetchObserver, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	limit := rate.Inf
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
	}
	return &Fetcher{
		store:    store,
		opts:     opts,
		limiter:  rate.NewLimiter(limit, opts.Burst),
		observer: observer,
		logger:   logger.With(slog.String("component", "usage_fetch")),
	}
}

// Fetch returns the readings of every point in wapIDs, in wapIDs order. The
// first failure cancels the remaining fetches and is returned as an upstream
// error.
func (f *Fetcher) Fetch(ctx context.Context, wapIDs []string, from, to time.Time) ([]domain.UsageReading, error) {
	start := time.Now()
	results := make([][]domain.UsageReading, len(wapIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.opts.Concurrency)
	for i, wap := range wapIDs {
		g.Go(func() error {
			if err := f.limiter.Wait(gctx); err != nil {
				return err
			}
			rows, err := f.fetchOne(gctx, wap, from, to)
			if f.observer != nil {
				f.observer.ObserveFetch(gctx, wap, len(rows), err)
			}
			if err != nil {
				return apperrors.NewUpstream("usage_fetch", fmt.Sprintf("fetch usage for %s", wap), err).
					WithContext("wap_id", wap)
			}
			results[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		f.logger.ErrorContext(ctx, "usage fetch failed", "error", err, "points", len(wapIDs))
		return nil, err
	}

	var out []domain.UsageReading
	empty := 0
	for _, rows := range results {
		if len(rows) == 0 {
			empty++
		}
		out = append(out, rows...)
	}
	f.logger.InfoContext(ctx, "fetched usage",
		"points", len(wapIDs),
		"points_without_usage", empty,
		"rows", len(out),
		"duration", time.Since(start),
	)
	return out, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, wap string, from, to time.Time) ([]domain.UsageReading, error) {
	if f.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.Timeout)
		defer cancel()
	}
	return f.store.Usage(ctx, wap, from, to)
}
