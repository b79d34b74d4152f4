package gapfill

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	apperrors "github.com/mullenkamp/nz-allo-usage-tools/internal/errors"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/spatial"
	"github.com/mullenkamp/nz-allo-usage-tools/pkg/contracts/domain"
)

// Defaults for the donor search
const (
	DefaultBufferDistance = 40000.0
	DefaultMinMonths      = 36
)

// Options tunes donor selection
type Options struct {
	BufferDistance float64
	MinMonths      int
}

// DefaultOptions returns the standard donor search settings
func DefaultOptions() Options {
	return Options{BufferDistance: DefaultBufferDistance, MinMonths: DefaultMinMonths}
}

// Inputs are the monthly series the estimator works from
type Inputs struct {
	Points  []domain.Point
	Permits []domain.Permit
	Alloc   []domain.AllocationRow
	Metered []domain.MeteredAllocationRow
	Usage   []domain.SplitUsageRow
}

// Report summarises an estimation run
type Report struct {
	Donors     int
	Recipients int
	Estimated  int
	// Missing counts recipient months with no donor ratio in the buffer
	Missing int
}

// Estimator fills usage for takes without enough metered history by
// transferring seasonal usage/allocation ratios from nearby donors
type Estimator struct {
	joiner spatial.Joiner
	opts   Options
	logger *slog.Logger
}

// NewEstimator creates an estimator using joiner for the donor search
func NewEstimator(joiner spatial.Joiner, opts Options, logger *slog.Logger) *Estimator {
	if logger == nil {
		logger = slog.Default()
	}
	if joiner == nil {
		joiner = spatial.NewBufferJoiner()
	}
	return &Estimator{
		joiner: joiner,
		opts:   opts,
		logger: logger.With(slog.String("component", "gapfill")),
	}
}

type ratioKey struct {
	wap     string
	useType string
	month   time.Month
}

// Estimate returns monthly usage estimates for every recipient allocation row.
// Months without a donor ratio are NaN.
func (e *Estimator) Estimate(ctx context.Context, in Inputs) ([]domain.EstimateRow, Report, error) {
	classes := Classify(in.Metered, e.opts.MinMonths)
	report := Report{Donors: len(classes.Donors), Recipients: len(classes.Recipients)}
	if len(classes.Recipients) == 0 {
		return nil, report, nil
	}

	useTypes := make(map[string]string, len(in.Permits))
	for _, p := range in.Permits {
		if _, ok := useTypes[p.PermitID]; !ok {
			useTypes[p.PermitID] = p.UseType
		}
	}

	allo := make(map[domain.Key]float64, len(in.Alloc))
	for _, a := range in.Alloc {
		allo[a.Key] = a.TotalAllo
	}

	// usage/allocation observations per donor take and calendar month
	obs := make(map[Take]map[time.Month][]float64)
	for _, u := range in.Usage {
		t := Take{u.PermitID, u.WapID}
		if !classes.Donors[t] || !u.Reported() {
			continue
		}
		a := allo[u.Key]
		if !(a > 0) {
			continue
		}
		if obs[t] == nil {
			obs[t] = make(map[time.Month][]float64)
		}
		m := u.Date.Month()
		obs[t][m] = append(obs[t][m], u.TotalUsage/a)
	}

	donorTakes := make(map[string][]Take)
	for _, t := range classes.DonorList() {
		donorTakes[t.WapID] = append(donorTakes[t.WapID], t)
	}

	locations := make(map[string]spatial.Site)
	for _, pt := range in.Points {
		if _, ok := locations[pt.WapID]; !ok {
			locations[pt.WapID] = spatial.Site{ID: pt.WapID, Lat: pt.Lat, Lon: pt.Lon}
		}
	}

	recipientSites := sites(locations, classes.RecipientList())
	donorSites := sites(locations, classes.DonorList())

	pairs, err := e.joiner.BufferJoin(ctx, recipientSites, donorSites, e.opts.BufferDistance)
	if err != nil {
		return nil, report, apperrors.NewUpstream("gapfill", "spatial join failed", err)
	}
	nearby := make(map[string][]string)
	for _, p := range pairs {
		nearby[p.Recipient] = append(nearby[p.Recipient], p.Donor)
	}

	ratios := make(map[ratioKey]float64)
	ratio := func(wap, useType string, month time.Month) float64 {
		k := ratioKey{wap, useType, month}
		if r, ok := ratios[k]; ok {
			return r
		}
		var xs []float64
		for _, dw := range nearby[wap] {
			for _, dt := range donorTakes[dw] {
				if useTypes[dt.PermitID] != useType {
					continue
				}
				xs = append(xs, obs[dt][month]...)
			}
		}
		r := math.NaN()
		if len(xs) > 0 {
			r = stat.Mean(xs, nil)
		}
		ratios[k] = r
		return r
	}

	var out []domain.EstimateRow
	for _, a := range in.Alloc {
		t := Take{a.PermitID, a.WapID}
		if !classes.Recipients[t] {
			continue
		}
		r := ratio(a.WapID, useTypes[a.PermitID], a.Date.Month())
		row := domain.EstimateRow{Key: a.Key}
		if math.IsNaN(r) {
			row.TotalUsageEst, row.SwUsageEst, row.GwUsageEst = math.NaN(), math.NaN(), math.NaN()
			report.Missing++
			e.logger.DebugContext(ctx, "no donor ratio for recipient month",
				"permit_id", a.PermitID,
				"wap_id", a.WapID,
				"month", a.Date.Format("2006-01"),
			)
		} else {
			row.TotalUsageEst = r * a.TotalAllo
			row.SwUsageEst, row.GwUsageEst = splitLike(row.TotalUsageEst, a)
			report.Estimated++
		}
		out = append(out, row)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })

	e.logger.InfoContext(ctx, "estimated recipient usage",
		"donors", report.Donors,
		"recipients", report.Recipients,
		"estimated", report.Estimated,
		"missing", report.Missing,
		"buffer_distance", e.opts.BufferDistance,
	)
	return out, report, nil
}

// splitLike divides v in the proportions of the allocation's own split
func splitLike(v float64, a domain.AllocationRow) (float64, float64) {
	if !(a.TotalAllo > 0) {
		return 0, 0
	}
	return v * a.SwAllo / a.TotalAllo, v * a.GwAllo / a.TotalAllo
}

func sites(locations map[string]spatial.Site, takes []Take) []spatial.Site {
	seen := make(map[string]bool)
	var out []spatial.Site
	for _, t := range takes {
		if seen[t.WapID] {
			continue
		}
		seen[t.WapID] = true
		if s, ok := locations[t.WapID]; ok {
			out = append(out, s)
		}
	}
	return out
}
