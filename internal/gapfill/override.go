package gapfill

import (
	"sort"

	"github.com/mullenkamp/nz-allo-usage-tools/pkg/contracts/domain"
)

// Override replaces estimates with actual metered usage wherever a reported
// value exists for the key, and adds metered keys that have no estimate.
// Replacement is exact: the estimate is discarded, never blended.
func Override(estimates []domain.EstimateRow, actual []domain.SplitUsageRow) []domain.EstimateRow {
	metered := make(map[domain.Key]domain.SplitUsageRow, len(actual))
	for _, a := range actual {
		if a.Reported() {
			metered[a.Key] = a
		}
	}

	out := make([]domain.EstimateRow, 0, len(estimates)+len(metered))
	used := make(map[domain.Key]bool, len(metered))
	for _, e := range estimates {
		if a, ok := metered[e.Key]; ok {
			out = append(out, fromActual(a))
			used[e.Key] = true
			continue
		}
		out = append(out, e)
	}
	for k, a := range metered {
		if !used[k] {
			out = append(out, fromActual(a))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out
}

func fromActual(a domain.SplitUsageRow) domain.EstimateRow {
	return domain.EstimateRow{
		Key:           a.Key,
		TotalUsageEst: a.TotalUsage,
		SwUsageEst:    a.SwUsage,
		GwUsageEst:    a.GwUsage,
		Metered:       true,
	}
}
