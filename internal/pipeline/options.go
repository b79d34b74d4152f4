package pipeline

import (
	"github.com/mullenkamp/nz-allo-usage-tools/internal/allocation"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/catalog"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/depletion"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/gapfill"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/reconcile"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/storage"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/usage"
	"github.com/mullenkamp/nz-allo-usage-tools/pkg/contracts/domain"
)

// Options carries every threshold and mode of a session
type Options struct {
	Window domain.Window
	Filter catalog.FilterOptions

	SplitMode   allocation.SplitMode
	MeteredMode reconcile.Mode

	// UsageAlloRatio is the excess-usage limit; apportioned usage above
	// ratio × allocation becomes missing
	UsageAlloRatio float64

	Clean   usage.CleanOptions
	Gapfill gapfill.Options
	Fetch   storage.FetchOptions

	DepletionConcurrency int
}

// DefaultOptions returns the standard pipeline settings
func DefaultOptions() Options {
	return Options{
		Filter:               catalog.DefaultFilterOptions(),
		SplitMode:            allocation.SplitExclusive,
		MeteredMode:          reconcile.Proportional,
		UsageAlloRatio:       usage.DefaultUsageAlloRatio,
		Clean:                usage.DefaultCleanOptions(),
		Gapfill:              gapfill.DefaultOptions(),
		Fetch:                storage.DefaultFetchOptions(),
		DepletionConcurrency: depletion.DefaultConcurrency,
	}
}

// withDefaults fills zero values
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SplitMode == "" {
		o.SplitMode = d.SplitMode
	}
	if o.MeteredMode == "" {
		o.MeteredMode = d.MeteredMode
	}
	if o.UsageAlloRatio <= 0 {
		o.UsageAlloRatio = d.UsageAlloRatio
	}
	if o.Gapfill.BufferDistance <= 0 {
		o.Gapfill.BufferDistance = d.Gapfill.BufferDistance
	}
	if o.Gapfill.MinMonths <= 0 {
		o.Gapfill.MinMonths = d.Gapfill.MinMonths
	}
	if o.Fetch.Concurrency <= 0 {
		o.Fetch = d.Fetch
	}
	if o.DepletionConcurrency <= 0 {
		o.DepletionConcurrency = d.DepletionConcurrency
	}
	o.Filter.Window = o.Window
	return o
}
