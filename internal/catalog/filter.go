package catalog

import (
	"context"
	"sort"
	"strings"

	apperrors "github.com/mullenkamp/nz-allo-usage-tools/internal/errors"
	"github.com/mullenkamp/nz-allo-usage-tools/pkg/contracts/domain"
)

// MinActiveDays is the shortest active span (exclusive) a permit may have
const MinActiveDays = 31

// FilterOptions selects permits and points from a decoded catalog
type FilterOptions struct {
	Window domain.Window

	// PermitIDs and WapIDs are id lists; the maps are field -> allowed values
	PermitIDs    []string
	PermitFilter map[string][]string
	WapIDs       []string
	WapFilter    map[string][]string

	OnlyConsumptive      bool
	IncludeHydroElectric bool

	// UseTypeMapping renames primary purposes before predicates run
	UseTypeMapping map[string]string
}

// DefaultFilterOptions returns the options used when the caller supplies none
func DefaultFilterOptions() FilterOptions {
	return FilterOptions{OnlyConsumptive: true}
}

// Filter applies the selection rules to a decoded table
func (c *Catalog) Filter(ctx context.Context, t Table, opts FilterOptions) (Table, error) {
	if err := validateFields(t, opts); err != nil {
		return Table{}, err
	}

	points := filterPoints(t.Points, opts)
	pointPermits := make(map[string]bool, len(points))
	for _, pt := range points {
		pointPermits[pt.PermitID] = true
	}

	permitIDs := toSet(opts.PermitIDs)
	var kept []domain.Permit
	for _, p := range t.Permits {
		if opts.UseTypeMapping != nil {
			if mapped, ok := opts.UseTypeMapping[p.UseType]; ok {
				p.UseType = mapped
			}
		}
		if !keepPermit(p, opts, permitIDs) {
			continue
		}
		kept = append(kept, p)
	}

	grouped := collapseFeatures(kept)

	var permits []domain.Permit
	survivors := make(map[string]bool, len(grouped))
	for _, p := range grouped {
		if pointPermits[p.PermitID] {
			permits = append(permits, p)
			survivors[p.PermitID] = true
		}
	}

	var outPoints []domain.Point
	for _, pt := range points {
		if survivors[pt.PermitID] {
			outPoints = append(outPoints, pt)
		}
	}

	c.logger.InfoContext(ctx, "filtered permit catalog",
		"window", opts.Window.String(),
		"permits_in", len(t.Permits),
		"permits_out", len(permits),
		"points_out", len(outPoints),
	)

	if len(permits) == 0 {
		return Table{}, apperrors.NewValidation("catalog", "no permits survive filtering for window %s", opts.Window)
	}
	return Table{Permits: permits, Points: outPoints}, nil
}

// keepPermit applies rules (a) to (g) to a single row
func keepPermit(p domain.Permit, opts FilterOptions, ids map[string]bool) bool {
	if !p.Exercised {
		return false
	}
	if opts.OnlyConsumptive && !strings.EqualFold(strings.TrimSpace(p.ActivityType), domain.ActivityConsumptiveTake) {
		return false
	}
	if !(p.MaxRate > 0) {
		return false
	}
	if ids != nil && !ids[p.PermitID] {
		return false
	}
	for field, values := range opts.PermitFilter {
		v, _ := p.Field(field)
		if !contains(values, v) {
			return false
		}
	}
	if !opts.IncludeHydroElectric && p.UseType == domain.UseTypeHydroElectric {
		return false
	}
	if p.FromDate.IsZero() || p.ToDate.IsZero() {
		return false
	}
	if w := opts.Window; !w.From.IsZero() && domain.DaysBetween(w.From, p.ToDate) <= MinActiveDays {
		return false
	}
	if w := opts.Window; !w.To.IsZero() && domain.DaysBetween(p.FromDate, w.To) <= MinActiveDays {
		return false
	}
	return p.ActiveDays() > MinActiveDays
}

func filterPoints(points []domain.Point, opts FilterOptions) []domain.Point {
	wapIDs := toSet(opts.WapIDs)
	permitIDs := toSet(opts.PermitIDs)
	seen := make(map[[2]string]bool, len(points))

	var out []domain.Point
	for _, pt := range points {
		if wapIDs != nil && !wapIDs[pt.WapID] {
			continue
		}
		if permitIDs != nil && !permitIDs[pt.PermitID] {
			continue
		}
		match := true
		for field, values := range opts.WapFilter {
			v, ok := pt.Field(field)
			if !ok || !contains(values, v) {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		k := [2]string{pt.PermitID, pt.WapID}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, pt)
	}
	return out
}

// collapseFeatures keeps one row per (permit_id, hydro_feature): the largest
// limits and the first row's other columns
func collapseFeatures(permits []domain.Permit) []domain.Permit {
	type key struct {
		id string
		hf domain.HydroFeature
	}
	idx := make(map[key]int, len(permits))
	var out []domain.Permit
	for _, p := range permits {
		k := key{p.PermitID, p.HydroFeature}
		i, ok := idx[k]
		if !ok {
			idx[k] = len(out)
			out = append(out, p)
			continue
		}
		g := &out[i]
		g.MaxRate = max(g.MaxRate, p.MaxRate)
		g.MaxDailyVolume = max(g.MaxDailyVolume, p.MaxDailyVolume)
		g.MaxAnnualVolume = max(g.MaxAnnualVolume, p.MaxAnnualVolume)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PermitID != out[j].PermitID {
			return out[i].PermitID < out[j].PermitID
		}
		return out[i].HydroFeature < out[j].HydroFeature
	})
	return out
}

var knownPointFields = map[string]bool{
	"wap_id": true, "wap": true, "permit_id": true, "lat": true, "lon": true, "method": true, "n_days": true,
}

func validateFields(t Table, opts FilterOptions) error {
	var probe domain.Permit
	for field := range opts.PermitFilter {
		if _, ok := probe.Field(field); !ok {
			return apperrors.NewValidation("catalog", "unknown permit filter field %q", field)
		}
	}
	if len(opts.WapFilter) == 0 {
		return nil
	}
	extras := make(map[string]bool)
	for _, pt := range t.Points {
		for k := range pt.Extra {
			extras[k] = true
		}
	}
	for field := range opts.WapFilter {
		if !knownPointFields[field] && !extras[field] {
			return apperrors.NewValidation("catalog", "unknown point filter field %q", field)
		}
	}
	return nil
}

func toSet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	s := make(map[string]bool, len(values))
	for _, v := range values {
		s[v] = true
	}
	return s
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

