package storage

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"
)

// ImportStats summarizes one import
type ImportStats struct {
	Permits  int
	Points   int
	Readings int
}

// Import copies the permits of src and the usage of every station they
// reference into dst, so later runs can read a local snapshot
func Import(ctx context.Context, src Backend, dst *SQLiteStore, opts FetchOptions, logger *slog.Logger) (ImportStats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()

	records, err := src.Permits(ctx)
	if err != nil {
		return ImportStats{}, fmt.Errorf("load permits: %w", err)
	}
	var waps []string
	for _, rec := range records {
		for _, st := range rec.Activity.Stations {
			if st.StationID != "" && !slices.Contains(waps, st.StationID) {
				waps = append(waps, st.StationID)
			}
		}
	}

	readings, err := NewFetcher(src, opts, nil, logger).Fetch(ctx, waps, time.Time{}, time.Time{})
	if err != nil {
		return ImportStats{}, err
	}
	if err := dst.PutPermits(ctx, records); err != nil {
		return ImportStats{}, err
	}
	if err := dst.PutUsage(ctx, readings); err != nil {
		return ImportStats{}, err
	}

	stats := ImportStats{Permits: len(records), Points: len(waps), Readings: len(readings)}
	logger.InfoContext(ctx, "import completed",
		"permits", stats.Permits,
		"points", stats.Points,
		"readings", stats.Readings,
		"duration", time.Since(start),
	)
	return stats, nil
}
