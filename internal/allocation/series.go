package allocation

import (
	"math"
	"sort"

	"github.com/mullenkamp/nz-allo-usage-tools/pkg/contracts/domain"
)

// BuildSeries expands each permit into one allocation row per period it is
// active within the window. Annual frequencies are built monthly; the caller
// aggregates them afterwards.
func BuildSeries(permits []domain.Permit, freq domain.Frequency, window domain.Window) []domain.PermitAllocation {
	freq = freq.Internal()

	var out []domain.PermitAllocation
	for _, p := range permits {
		from, to := window.Clamp(p.FromDate, p.ToDate)
		if to.Before(from) {
			continue
		}
		for _, period := range freq.Periods(from, to) {
			days := period.Overlap(from, to)
			if days == 0 {
				continue
			}
			out = append(out, domain.PermitAllocation{
				PermitID:     p.PermitID,
				HydroFeature: p.HydroFeature,
				Date:         period.End,
				Amount:       PeriodAmount(p, freq, days),
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.PermitID != b.PermitID {
			return a.PermitID < b.PermitID
		}
		if a.HydroFeature != b.HydroFeature {
			return a.HydroFeature < b.HydroFeature
		}
		return a.Date.Before(b.Date)
	})
	return out
}

// PeriodAmount is the allocation for a permit active the given number of days
// of a period at freq
func PeriodAmount(p domain.Permit, freq domain.Frequency, activeDays int) float64 {
	switch freq {
	case domain.Daily:
		return p.MaxDailyVolume
	case domain.Weekly:
		return p.MaxDailyVolume * float64(activeDays)
	default:
		return math.RoundToEven(p.MaxAnnualVolume / 365 * float64(activeDays))
	}
}
