package usage

import (
	"math"
	"sort"
	"time"

	"github.com/mullenkamp/nz-allo-usage-tools/pkg/contracts/domain"
)

// DefaultUsageAlloRatio is the usage/allocation ratio above which apportioned usage is rejected
const DefaultUsageAlloRatio = 2.0

// Apportion splits point usage across the permits sharing the point in
// proportion to their allocation at that point and date. Apportioned values
// above ratioLimit * total_allo become NaN with an adjusted quality code.
// The second return value counts those outliers.
func Apportion(alloc []domain.AllocationRow, usage []domain.UsageRow, ratioLimit float64) ([]domain.SplitUsageRow, int) {
	type key struct {
		wap  string
		date time.Time
	}

	combo := make(map[key]float64, len(alloc))
	sharing := make(map[key]int, len(alloc))
	for _, a := range alloc {
		k := key{a.WapID, a.Date}
		combo[k] += a.TotalAllo
		sharing[k]++
	}

	byPoint := make(map[key]domain.UsageRow, len(usage))
	for _, u := range usage {
		byPoint[key{u.WapID, u.Date}] = u
	}

	outliers := 0
	var out []domain.SplitUsageRow
	for _, a := range alloc {
		k := key{a.WapID, a.Date}
		u, ok := byPoint[k]
		if !ok {
			continue
		}

		ratio := 1 / float64(sharing[k])
		if c := combo[k]; c > 0 {
			ratio = a.TotalAllo / c
		}

		row := domain.SplitUsageRow{
			Key:         a.Key,
			TotalUsage:  u.TotalUsage * ratio,
			QualityCode: u.QualityCode,
		}
		if row.TotalUsage > ratioLimit*a.TotalAllo {
			row.TotalUsage = math.NaN()
			row.SwUsage = math.NaN()
			row.GwUsage = math.NaN()
			row.QualityCode = max(row.QualityCode, domain.QualityAdjusted)
			outliers++
			out = append(out, row)
			continue
		}

		swRatio := 0.0
		if a.TotalAllo > 0 {
			swRatio = a.SwAllo / a.TotalAllo
		}
		row.SwUsage = row.TotalUsage * swRatio
		row.GwUsage = max(row.TotalUsage-row.SwUsage, 0)
		out = append(out, row)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out, outliers
}
