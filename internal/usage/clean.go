package usage

import (
	"math"
	"sort"
	"time"

	"github.com/mullenkamp/nz-allo-usage-tools/pkg/contracts/domain"
)

// CleanOptions controls the daily cleaning stage
type CleanOptions struct {
	SuppressSpikes bool
	SpikeThreshold float64
}

// DefaultCleanOptions matches the pipeline defaults
func DefaultCleanOptions() CleanOptions {
	return CleanOptions{SuppressSpikes: true, SpikeThreshold: 2}
}

// Events counts data-quality adjustments made while cleaning
type Events struct {
	Clipped int
	Spikes  int
	Dropped int
}

// Clean turns raw daily readings into cleaned daily usage. Duplicate readings
// for a point and day are summed, missing values are dropped, negatives are
// clipped to zero and, optionally, isolated one-day spikes are replaced by the
// mean of the adjacent days.
func Clean(readings []domain.UsageReading, opts CleanOptions) ([]domain.UsageRow, Events) {
	var ev Events

	type key struct {
		wap  string
		date time.Time
	}
	idx := make(map[key]int, len(readings))
	var rows []domain.UsageRow
	for _, r := range readings {
		if math.IsNaN(r.WaterUse) || math.IsInf(r.WaterUse, 0) {
			ev.Dropped++
			continue
		}
		k := key{r.WapID, domain.Day(r.Date)}
		if i, ok := idx[k]; ok {
			rows[i].TotalUsage += r.WaterUse
			continue
		}
		idx[k] = len(rows)
		rows = append(rows, domain.UsageRow{WapID: r.WapID, Date: k.date, TotalUsage: r.WaterUse})
	}

	sortRows(rows)

	for i := range rows {
		if rows[i].TotalUsage < 0 {
			rows[i].TotalUsage = 0
			rows[i].QualityCode = domain.QualityAdjusted
			ev.Clipped++
		}
	}

	if opts.SuppressSpikes {
		ev.Spikes = suppressSpikes(rows, opts.SpikeThreshold)
	}
	return rows, ev
}

// suppressSpikes compares each value with its original neighbours, so a
// replaced spike never feeds the test for the next day
func suppressSpikes(rows []domain.UsageRow, threshold float64) int {
	if len(rows) < 3 {
		return 0
	}
	orig := make([]float64, len(rows))
	for i, r := range rows {
		orig[i] = r.TotalUsage
	}

	n := 0
	for i := 1; i < len(rows)-1; i++ {
		prev, cur, next := rows[i-1], rows[i], rows[i+1]
		if prev.WapID != cur.WapID || next.WapID != cur.WapID {
			continue
		}
		if domain.DaysBetween(prev.Date, cur.Date) != 1 || domain.DaysBetween(cur.Date, next.Date) != 1 {
			continue
		}
		mean := (orig[i-1] + orig[i+1]) / 2
		if orig[i] > mean+threshold {
			rows[i].TotalUsage = mean
			rows[i].QualityCode = domain.QualitySpike
			n++
		}
	}
	return n
}

// Resample sums cleaned usage into periods of freq, labelled by period end.
// The quality code of a period is the worst code of its days.
func Resample(daily []domain.UsageRow, freq domain.Frequency) []domain.UsageRow {
	if freq == domain.Daily {
		out := make([]domain.UsageRow, len(daily))
		copy(out, daily)
		sortRows(out)
		return out
	}

	type key struct {
		wap  string
		date time.Time
	}
	idx := make(map[key]int)
	var out []domain.UsageRow
	for _, r := range daily {
		k := key{r.WapID, freq.Label(r.Date)}
		if i, ok := idx[k]; ok {
			out[i].TotalUsage += r.TotalUsage
			out[i].QualityCode = max(out[i].QualityCode, r.QualityCode)
			continue
		}
		idx[k] = len(out)
		out = append(out, domain.UsageRow{WapID: r.WapID, Date: k.date, TotalUsage: r.TotalUsage, QualityCode: r.QualityCode})
	}
	sortRows(out)
	return out
}

func sortRows(rows []domain.UsageRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].WapID != rows[j].WapID {
			return rows[i].WapID < rows[j].WapID
		}
		return rows[i].Date.Before(rows[j].Date)
	})
}
