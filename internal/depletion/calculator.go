package depletion

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/mullenkamp/nz-allo-usage-tools/internal/errors"
	"github.com/mullenkamp/nz-allo-usage-tools/pkg/contracts/domain"
)

// DefaultConcurrency bounds the number of points modelled at once
const DefaultConcurrency = 4

// Calculator turns daily usage estimates into stream depletion rates
type Calculator struct {
	factory     Factory
	concurrency int
	logger      *slog.Logger
}

// New creates a calculator. A nil factory uses the built-in Theis model.
func New(factory Factory, concurrency int, logger *slog.Logger) *Calculator {
	if logger == nil {
		logger = slog.Default()
	}
	if factory == nil {
		factory = NewTheis
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Calculator{
		factory:     factory,
		concurrency: concurrency,
		logger:      logger.With(slog.String("component", "depletion")),
	}
}

type take struct {
	permitID string
	wapID    string
}

// job is one groundwater take to run through a model
type job struct {
	take   take
	point  domain.Point
	series []domain.EstimateRow
}

// Calculate returns the depletion rate per (permit, wap, date) at freq.
// daily must be the daily usage-estimate series. Surface-water takes pass
// their total estimate through. Groundwater takes with aquifer parameters run
// their whole pumping, not the gw share left after the sd split, through a
// fresh model. Every other take is skipped.
func (c *Calculator) Calculate(ctx context.Context, points []domain.Point, permits []domain.Permit, daily []domain.EstimateRow, freq domain.Frequency) ([]domain.DepletionRow, error) {
	features := make(map[string]map[domain.HydroFeature]bool)
	for _, p := range permits {
		if features[p.PermitID] == nil {
			features[p.PermitID] = make(map[domain.HydroFeature]bool)
		}
		features[p.PermitID][p.HydroFeature] = true
	}
	pointByTake := make(map[take]domain.Point, len(points))
	for _, pt := range points {
		pointByTake[take{pt.PermitID, pt.WapID}] = pt
	}

	series := make(map[take][]domain.EstimateRow)
	var order []take
	for _, r := range daily {
		t := take{r.PermitID, r.WapID}
		if _, ok := series[t]; !ok {
			order = append(order, t)
		}
		series[t] = append(series[t], r)
	}

	var out []domain.DepletionRow
	var jobs []job
	skipped := 0
	for _, t := range order {
		f := features[t.permitID]
		switch {
		case f[domain.Groundwater]:
			pt, ok := pointByTake[t]
			if !ok || !pt.HasAquiferParams() {
				skipped++
				c.logger.DebugContext(ctx, "skipping take without aquifer parameters",
					"permit_id", t.permitID,
					"wap_id", t.wapID,
				)
				continue
			}
			jobs = append(jobs, job{take: t, point: pt, series: series[t]})
		case f[domain.SurfaceWater]:
			for _, r := range series[t] {
				out = append(out, domain.DepletionRow{Key: r.Key, SDRate: r.TotalUsageEst})
			}
		default:
			skipped++
		}
	}

	results := make([][]domain.DepletionRow, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows, err := c.model(j)
			if err != nil {
				return err
			}
			results[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, rows := range results {
		out = append(out, rows...)
	}

	if freq != domain.Daily {
		out = resample(out, freq)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })

	c.logger.InfoContext(ctx, "calculated depletion rates",
		"modelled", len(jobs),
		"skipped", skipped,
		"rows", len(out),
		"frequency", string(freq),
	)
	return out, nil
}

func (c *Calculator) model(j job) ([]domain.DepletionRow, error) {
	m := c.factory()
	methods, err := m.LoadAquiferData(paramsOf(j.point))
	if err != nil {
		return nil, apperrors.NewUpstream("depletion",
			fmt.Sprintf("load aquifer data for %s/%s", j.take.permitID, j.take.wapID), err)
	}
	method := ""
	if slices.Contains(methods, j.point.Method) {
		method = j.point.Method
	}

	rows := slices.Clone(j.series)
	sort.Slice(rows, func(a, b int) bool { return rows[a].Date.Before(rows[b].Date) })
	first := rows[0].Date
	n := domain.DaysBetween(first, rows[len(rows)-1].Date) + 1

	pumping := make([]float64, n)
	present := make([]bool, n)
	for _, r := range rows {
		i := domain.DaysBetween(first, r.Date)
		if math.IsNaN(r.TotalUsageEst) {
			continue
		}
		pumping[i] += r.TotalUsageEst
		present[i] = true
	}

	rates, err := m.SDExtraction(pumping, method)
	if err != nil {
		return nil, apperrors.NewUpstream("depletion",
			fmt.Sprintf("depletion extraction for %s/%s", j.take.permitID, j.take.wapID), err)
	}

	out := make([]domain.DepletionRow, 0, len(rows))
	for _, r := range rows {
		i := domain.DaysBetween(first, r.Date)
		v := rates[i]
		if !present[i] {
			v = math.NaN()
		}
		out = append(out, domain.DepletionRow{Key: r.Key, SDRate: v})
	}
	return out, nil
}

// SDRatios fills the sd_ratio of groundwater points that have aquifer
// parameters and an n_days setting but no explicit ratio. Other points are
// returned unchanged.
func (c *Calculator) SDRatios(ctx context.Context, points []domain.Point) ([]domain.Point, error) {
	out := slices.Clone(points)
	filled := 0
	for i, pt := range out {
		if pt.SDRatio != nil || pt.NDays <= 0 || !pt.HasAquiferParams() {
			continue
		}
		m := c.factory()
		methods, err := m.LoadAquiferData(paramsOf(pt))
		if err != nil {
			return nil, apperrors.NewUpstream("depletion",
				fmt.Sprintf("load aquifer data for %s/%s", pt.PermitID, pt.WapID), err)
		}
		method := ""
		if slices.Contains(methods, pt.Method) {
			method = pt.Method
		}
		r, err := m.SDRatio(pt.NDays, method)
		if err != nil {
			return nil, apperrors.NewUpstream("depletion",
				fmt.Sprintf("sd ratio for %s/%s", pt.PermitID, pt.WapID), err)
		}
		r = min(max(r, 0), 1)
		out[i].SDRatio = &r
		filled++
	}
	if filled > 0 {
		c.logger.DebugContext(ctx, "derived sd ratios from aquifer parameters", "points", filled)
	}
	return out, nil
}

func paramsOf(pt domain.Point) AquiferParams {
	p := AquiferParams{
		SepDistance:    *pt.SepDistance,
		Transmissivity: *pt.PumpAqTrans,
		Storativity:    *pt.PumpAqS,
	}
	if pt.StreamBedK != nil {
		p.StreamLeakance = *pt.StreamBedK
	}
	return p
}

// resample sums daily rates into periods; a period is NaN only when every
// day in it is NaN
func resample(daily []domain.DepletionRow, freq domain.Frequency) []domain.DepletionRow {
	type acc struct {
		sum   float64
		valid bool
	}
	sums := make(map[domain.Key]*acc)
	for _, r := range daily {
		k := domain.Key{PermitID: r.PermitID, WapID: r.WapID, Date: freq.Label(r.Date)}
		a, ok := sums[k]
		if !ok {
			a = &acc{}
			sums[k] = a
		}
		if !math.IsNaN(r.SDRate) {
			a.sum += r.SDRate
			a.valid = true
		}
	}
	out := make([]domain.DepletionRow, 0, len(sums))
	for k, a := range sums {
		v := a.sum
		if !a.valid {
			v = math.NaN()
		}
		out = append(out, domain.DepletionRow{Key: k, SDRate: v})
	}
	return out
}
