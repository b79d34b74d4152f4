package allocation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mullenkamp/nz-allo-usage-tools/pkg/contracts/domain"
)

// SplitMode decides how a point's allocation divides into surface and groundwater
type SplitMode string

const (
	// SplitExclusive keeps sw + gw == total: gw is what the stream does not take
	SplitExclusive SplitMode = "exclusive"
	// SplitInclusive counts the whole take as groundwater for groundwater rows,
	// and none for surface-water rows, alongside the depleting share
	SplitInclusive SplitMode = "inclusive"
)

// ParseSplitMode parses a split mode, empty means exclusive
func ParseSplitMode(s string) (SplitMode, error) {
	switch SplitMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", SplitExclusive:
		return SplitExclusive, nil
	case SplitInclusive:
		return SplitInclusive, nil
	}
	return "", fmt.Errorf("unknown split mode %q", s)
}

// SDRatio returns the point's stream depletion ratio for a feature, clamped to [0,1]
func SDRatio(pt domain.Point, hf domain.HydroFeature) float64 {
	if pt.SDRatio == nil {
		return hf.DefaultSDRatio()
	}
	return min(max(*pt.SDRatio, 0), 1)
}

// Apportion distributes permit allocations across the permit's points and
// splits each share into surface and groundwater. Rows for the same
// (permit, point, date) under different features are averaged.
func Apportion(series []domain.PermitAllocation, points []domain.Point, mode SplitMode) []domain.AllocationRow {
	byPermit := make(map[string][]domain.Point)
	for _, pt := range points {
		byPermit[pt.PermitID] = append(byPermit[pt.PermitID], pt)
	}
	weights := make(map[string][]float64, len(byPermit))
	for id, pts := range byPermit {
		weights[id] = pointWeights(pts)
	}

	type acc struct {
		total, sw, gw float64
		n             int
	}
	sums := make(map[domain.Key]*acc)
	var order []domain.Key

	for _, a := range series {
		pts := byPermit[a.PermitID]
		w := weights[a.PermitID]
		for i, pt := range pts {
			total := a.Amount * w[i]
			sd := SDRatio(pt, a.HydroFeature)
			sw := total * sd
			gw := total - sw
			if mode == SplitInclusive {
				gw = 0
				if a.HydroFeature == domain.Groundwater {
					gw = total
				}
			}

			k := domain.Key{PermitID: a.PermitID, WapID: pt.WapID, Date: a.Date}
			s, ok := sums[k]
			if !ok {
				s = &acc{}
				sums[k] = s
				order = append(order, k)
			}
			s.total += total
			s.sw += sw
			s.gw += gw
			s.n++
		}
	}

	out := make([]domain.AllocationRow, 0, len(order))
	for _, k := range order {
		s := sums[k]
		n := float64(s.n)
		out = append(out, domain.AllocationRow{Key: k, TotalAllo: s.total / n, SwAllo: s.sw / n, GwAllo: s.gw / n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out
}

// pointWeights splits by relative capacity. Points without a positive
// capacity stand in at the mean of the known ones, so known ratios hold and
// the weights still sum to one. With no known capacity the split is equal.
func pointWeights(pts []domain.Point) []float64 {
	caps := make([]float64, len(pts))
	known, sum := 0, 0.0
	for i, pt := range pts {
		if pt.Capacity != nil && *pt.Capacity > 0 {
			caps[i] = *pt.Capacity
			sum += caps[i]
			known++
		}
	}

	w := make([]float64, len(pts))
	if known == 0 {
		for i := range w {
			w[i] = 1 / float64(len(pts))
		}
		return w
	}
	mean := sum / float64(known)
	total := sum + mean*float64(len(pts)-known)
	for i, c := range caps {
		if c == 0 {
			c = mean
		}
		w[i] = c / total
	}
	return w
}
