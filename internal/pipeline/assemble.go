package pipeline

import (
	"context"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/mullenkamp/nz-allo-usage-tools/internal/catalog"
	apperrors "github.com/mullenkamp/nz-allo-usage-tools/internal/errors"
	"github.com/mullenkamp/nz-allo-usage-tools/pkg/contracts/domain"
)

// part is one dataset's columns keyed by (permit, wap, date)
type part struct {
	kind   domain.DatasetKind
	values map[domain.Key][]float64
}

type datasetStage func(ctx context.Context, s *Session, sc stageContext) (map[domain.Key][]float64, error)

// datasetStages dispatches each dataset kind to the stage that produces it.
// Value order matches DatasetKind.Columns.
var datasetStages = map[domain.DatasetKind]datasetStage{
	domain.DatasetAllocation: func(ctx context.Context, s *Session, sc stageContext) (map[domain.Key][]float64, error) {
		rows, err := s.allocation(ctx, sc.freq)
		return collect(rows, func(r domain.AllocationRow) (domain.Key, []float64) {
			return r.Key, []float64{r.TotalAllo, r.SwAllo, r.GwAllo}
		}), err
	},
	domain.DatasetMeteredAllocation: func(ctx context.Context, s *Session, sc stageContext) (map[domain.Key][]float64, error) {
		rows, err := s.meteredAllocation(ctx, sc)
		return collect(rows, func(r domain.MeteredAllocationRow) (domain.Key, []float64) {
			return r.Key, []float64{r.TotalMeteredAllo, r.SwMeteredAllo, r.GwMeteredAllo}
		}), err
	},
	domain.DatasetUsage: func(ctx context.Context, s *Session, sc stageContext) (map[domain.Key][]float64, error) {
		rows, err := s.splitUsage(ctx, sc)
		return collect(rows, func(r domain.SplitUsageRow) (domain.Key, []float64) {
			if !r.Reported() {
				return r.Key, []float64{math.NaN(), math.NaN(), math.NaN()}
			}
			return r.Key, []float64{r.TotalUsage, r.SwUsage, r.GwUsage}
		}), err
	},
	domain.DatasetUsageEstimate: func(ctx context.Context, s *Session, sc stageContext) (map[domain.Key][]float64, error) {
		rows, err := s.usageEstimate(ctx, sc)
		return collect(rows, func(r domain.EstimateRow) (domain.Key, []float64) {
			return r.Key, []float64{r.TotalUsageEst, r.SwUsageEst, r.GwUsageEst}
		}), err
	},
	domain.DatasetDepletionRate: func(ctx context.Context, s *Session, sc stageContext) (map[domain.Key][]float64, error) {
		rows, err := s.depletionRate(ctx, sc)
		return collect(rows, func(r domain.DepletionRow) (domain.Key, []float64) {
			return r.Key, []float64{r.SDRate}
		}), err
	},
}

func collect[T any](rows []T, fn func(T) (domain.Key, []float64)) map[domain.Key][]float64 {
	out := make(map[domain.Key][]float64, len(rows))
	for _, r := range rows {
		k, v := fn(r)
		out[k] = v
	}
	return out
}

// assemble outer-joins the parts on (permit, wap, date), aggregates annual
// requests, drops rows without positive allocation when allocation was
// requested, then groups by the requested columns.
func assemble(req Request, cat catalog.Table, parts []part) (*domain.ResultTable, error) {
	columns := req.columns()
	offsets := make(map[domain.DatasetKind]int, len(parts))
	off := 0
	for _, p := range parts {
		offsets[p.kind] = off
		off += len(p.kind.Columns())
	}

	joined := make(map[domain.Key][]float64)
	for _, p := range parts {
		o := offsets[p.kind]
		for k, vals := range p.values {
			row, ok := joined[k]
			if !ok {
				row = nanRow(len(columns))
				joined[k] = row
			}
			copy(row[o:], vals)
		}
	}

	if req.Frequency.IsAnnual() {
		joined = aggregate(joined, func(k domain.Key) domain.Key {
			k.Date = req.Frequency.Label(k.Date)
			return k
		}, len(columns))
	}

	if req.wants(domain.DatasetAllocation) {
		i := slices.Index(columns, "total_allo")
		for k, row := range joined {
			if !(row[i] > 0) {
				delete(joined, k)
			}
		}
	}

	resolve, err := groupResolver(req.GroupBy, cat)
	if err != nil {
		return nil, err
	}

	type groupKey struct {
		group string
		date  time.Time
	}
	groups := make(map[groupKey]*domain.ResultRow)
	for k, row := range joined {
		values := resolve(k)
		gk := groupKey{group: strings.Join(values, "\x00"), date: k.Date}
		acc, ok := groups[gk]
		if !ok {
			acc = &domain.ResultRow{Group: values, Date: k.Date, Values: nanRow(len(columns))}
			groups[gk] = acc
		}
		addRow(acc.Values, row)
	}

	table := &domain.ResultTable{
		Frequency: req.Frequency,
		GroupBy:   slices.Clone(req.GroupBy),
		Columns:   columns,
		Rows:      make([]domain.ResultRow, 0, len(groups)),
	}
	for _, r := range groups {
		table.Rows = append(table.Rows, *r)
	}
	sort.Slice(table.Rows, func(i, j int) bool {
		a, b := table.Rows[i], table.Rows[j]
		if c := slices.Compare(a.Group, b.Group); c != 0 {
			return c < 0
		}
		return a.Date.Before(b.Date)
	})
	return table, nil
}

// aggregate sums rows that map to the same key
func aggregate(in map[domain.Key][]float64, keyOf func(domain.Key) domain.Key, width int) map[domain.Key][]float64 {
	out := make(map[domain.Key][]float64, len(in))
	for k, row := range in {
		nk := keyOf(k)
		acc, ok := out[nk]
		if !ok {
			acc = nanRow(width)
			out[nk] = acc
		}
		addRow(acc, row)
	}
	return out
}

// addRow adds src into acc cell by cell. A cell stays missing only while
// every contribution is missing.
func addRow(acc, src []float64) {
	for i, v := range src {
		switch {
		case math.IsNaN(v):
		case math.IsNaN(acc[i]):
			acc[i] = v
		default:
			acc[i] += v
		}
	}
}

func nanRow(n int) []float64 {
	row := make([]float64, n)
	for i := range row {
		row[i] = math.NaN()
	}
	return row
}

// groupResolver returns a function mapping a key to its group values. Columns
// other than the key's own come from the point row and then the first permit
// row of the permit.
func groupResolver(groupBy []string, cat catalog.Table) (func(domain.Key) []string, error) {
	type take struct{ permit, wap string }
	points := make(map[take]domain.Point, len(cat.Points))
	for _, pt := range cat.Points {
		points[take{pt.PermitID, pt.WapID}] = pt
	}
	permits := make(map[string]domain.Permit, len(cat.Permits))
	for _, p := range cat.Permits {
		if _, ok := permits[p.PermitID]; !ok {
			permits[p.PermitID] = p
		}
	}

	for _, g := range groupBy {
		if g == "permit_id" || g == "wap_id" || knownColumn(g, cat) {
			continue
		}
		return nil, apperrors.NewValidation("pipeline", "unknown group column %q", g).WithContext("group_by", groupBy)
	}

	return func(k domain.Key) []string {
		values := make([]string, len(groupBy))
		for i, g := range groupBy {
			switch g {
			case "permit_id":
				values[i] = k.PermitID
				continue
			case "wap_id":
				values[i] = k.WapID
				continue
			}
			if pt, ok := points[take{k.PermitID, k.WapID}]; ok {
				if v, ok := pt.Field(g); ok {
					values[i] = v
					continue
				}
			}
			if p, ok := permits[k.PermitID]; ok {
				if v, ok := p.Field(g); ok {
					values[i] = v
				}
			}
		}
		return values
	}, nil
}

func knownColumn(name string, cat catalog.Table) bool {
	for _, pt := range cat.Points {
		if _, ok := pt.Field(name); ok {
			return true
		}
	}
	for _, p := range cat.Permits {
		if _, ok := p.Field(name); ok {
			return true
		}
	}
	return false
}
