package gapfill

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/interp"

	"github.com/mullenkamp/nz-allo-usage-tools/pkg/contracts/domain"
)

// ExpandDaily converts monthly estimates into daily rates over the days of
// each month that fall inside window. A month's rate is its estimate divided
// by those active days. Each run of consecutive estimated months is
// interpolated on its own with a monotone cubic through the midpoints of the
// active spans, anchored at the first active day and the day after the last.
// Active days of months without an estimate are emitted as NaN.
func ExpandDaily(monthly []domain.EstimateRow, window domain.Window) ([]domain.EstimateRow, error) {
	var out []domain.EstimateRow
	for _, series := range byTake(monthly) {
		var run []domain.EstimateRow
		flush := func() error {
			if len(run) == 0 {
				return nil
			}
			days, err := interpolateRun(run, window)
			if err != nil {
				return err
			}
			out = append(out, days...)
			run = run[:0]
			return nil
		}

		for _, r := range series {
			if _, ok := activeSpan(r.Date, window); !ok {
				continue
			}
			if math.IsNaN(r.TotalUsageEst) {
				if err := flush(); err != nil {
					return nil, err
				}
				out = append(out, missingDays(r, window)...)
				continue
			}
			if n := len(run); n > 0 && !consecutiveMonths(run[n-1].Date, r.Date) {
				if err := flush(); err != nil {
					return nil, err
				}
			}
			run = append(run, r)
		}
		if err := flush(); err != nil {
			return nil, err
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out, nil
}

func interpolateRun(run []domain.EstimateRow, window domain.Window) ([]domain.EstimateRow, error) {
	spans := make([]domain.Period, len(run))
	for i, r := range run {
		spans[i], _ = activeSpan(r.Date, window)
	}
	origin := spans[0].Start
	offset := func(t time.Time) float64 { return float64(domain.DaysBetween(origin, t)) }
	rate := func(i int) float64 { return run[i].TotalUsageEst / float64(spans[i].Days()) }

	xs := make([]float64, 0, len(run)+2)
	ys := make([]float64, 0, len(run)+2)
	xs = append(xs, 0)
	ys = append(ys, rate(0))
	for i, p := range spans {
		xs = append(xs, offset(p.Start)+float64(p.Days())/2)
		ys = append(ys, rate(i))
	}
	last := len(run) - 1
	xs = append(xs, offset(spans[last].End)+1)
	ys = append(ys, rate(last))

	var fb interp.FritschButland
	if err := fb.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("fit daily interpolation for %s/%s: %w", run[0].PermitID, run[0].WapID, err)
	}

	var out []domain.EstimateRow
	for i, r := range run {
		p := spans[i]
		sw, gw := fractions(r)
		for d := p.Start; !d.After(p.End); d = d.AddDate(0, 0, 1) {
			v := max(fb.Predict(offset(d)+0.5), 0)
			out = append(out, domain.EstimateRow{
				Key:           domain.Key{PermitID: r.PermitID, WapID: r.WapID, Date: d},
				TotalUsageEst: v,
				SwUsageEst:    v * sw,
				GwUsageEst:    v * gw,
			})
		}
	}
	return out, nil
}

// activeSpan is the part of date's month inside window
func activeSpan(date time.Time, window domain.Window) (domain.Period, bool) {
	p := domain.Monthly.PeriodOf(date)
	from, to := window.Clamp(p.Start, p.End)
	if from.After(to) {
		return domain.Period{}, false
	}
	return domain.Period{Start: from, End: to}, true
}

func fractions(r domain.EstimateRow) (float64, float64) {
	if !(r.TotalUsageEst > 0) {
		return 0, 0
	}
	return r.SwUsageEst / r.TotalUsageEst, r.GwUsageEst / r.TotalUsageEst
}

func missingDays(r domain.EstimateRow, window domain.Window) []domain.EstimateRow {
	p, _ := activeSpan(r.Date, window)
	out := make([]domain.EstimateRow, 0, p.Days())
	for d := p.Start; !d.After(p.End); d = d.AddDate(0, 0, 1) {
		out = append(out, domain.EstimateRow{
			Key:           domain.Key{PermitID: r.PermitID, WapID: r.WapID, Date: d},
			TotalUsageEst: math.NaN(),
			SwUsageEst:    math.NaN(),
			GwUsageEst:    math.NaN(),
		})
	}
	return out
}

func consecutiveMonths(a, b time.Time) bool {
	return domain.Monthly.PeriodOf(a).End.AddDate(0, 0, 1).Equal(domain.Monthly.PeriodOf(b).Start)
}

// SumToFrequency sums daily estimates into periods of freq. A period is NaN
// only when every day in it is NaN.
func SumToFrequency(daily []domain.EstimateRow, freq domain.Frequency) []domain.EstimateRow {
	type acc struct {
		row   domain.EstimateRow
		valid bool
	}
	idx := make(map[domain.Key]*acc)
	var order []domain.Key
	for _, r := range daily {
		k := domain.Key{PermitID: r.PermitID, WapID: r.WapID, Date: freq.Label(r.Date)}
		a, ok := idx[k]
		if !ok {
			a = &acc{row: domain.EstimateRow{Key: k}}
			idx[k] = a
			order = append(order, k)
		}
		if math.IsNaN(r.TotalUsageEst) {
			continue
		}
		a.valid = true
		a.row.TotalUsageEst += r.TotalUsageEst
		a.row.SwUsageEst += r.SwUsageEst
		a.row.GwUsageEst += r.GwUsageEst
		a.row.Metered = a.row.Metered || r.Metered
	}

	out := make([]domain.EstimateRow, 0, len(order))
	for _, k := range order {
		a := idx[k]
		if !a.valid {
			a.row.TotalUsageEst, a.row.SwUsageEst, a.row.GwUsageEst = math.NaN(), math.NaN(), math.NaN()
		}
		out = append(out, a.row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out
}

func byTake(rows []domain.EstimateRow) [][]domain.EstimateRow {
	idx := make(map[Take]int)
	var groups [][]domain.EstimateRow
	for _, r := range rows {
		t := Take{r.PermitID, r.WapID}
		i, ok := idx[t]
		if !ok {
			i = len(groups)
			idx[t] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], r)
	}
	for _, g := range groups {
		sort.Slice(g, func(i, j int) bool { return g[i].Date.Before(g[j].Date) })
	}
	return groups
}
