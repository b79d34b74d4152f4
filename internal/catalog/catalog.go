package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mullenkamp/nz-allo-usage-tools/pkg/contracts/domain"
)

// Seconds per day over litres per cubic metre; converts a daily limit to a rate
const (
	secondsPerDay   = 86400.0
	litresPerVolume = 1000.0
)

// Table holds the permit and point rows of a catalog
type Table struct {
	Permits []domain.Permit
	Points  []domain.Point
}

// Empty reports whether the table has no permits
func (t Table) Empty() bool {
	return len(t.Permits) == 0
}

// PermitIDs returns the distinct permit ids in input order
func (t Table) PermitIDs() []string {
	seen := make(map[string]bool, len(t.Permits))
	var ids []string
	for _, p := range t.Permits {
		if !seen[p.PermitID] {
			seen[p.PermitID] = true
			ids = append(ids, p.PermitID)
		}
	}
	return ids
}

// WapIDs returns the distinct point ids in input order
func (t Table) WapIDs() []string {
	seen := make(map[string]bool, len(t.Points))
	var ids []string
	for _, p := range t.Points {
		if !seen[p.WapID] {
			seen[p.WapID] = true
			ids = append(ids, p.WapID)
		}
	}
	return ids
}

// Catalog decodes and filters permit records
type Catalog struct {
	logger   *slog.Logger
	validate *validator.Validate
}

// New creates a catalog
func New(logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		logger:   logger.With(slog.String("component", "catalog")),
		validate: validator.New(),
	}
}

// Decode converts raw permit records into unfiltered permit and point rows.
// Records failing structural validation are skipped.
func (c *Catalog) Decode(ctx context.Context, records []domain.PermitRecord) Table {
	var t Table
	skipped := 0
	for _, rec := range records {
		if err := c.validate.Struct(rec); err != nil {
			skipped++
			c.logger.DebugContext(ctx, "skipping invalid permit record", "permit_id", rec.PermitID, "error", err)
			continue
		}
		t.Permits = append(t.Permits, decodePermit(rec))
		for _, s := range rec.Activity.Stations {
			t.Points = append(t.Points, decodeStation(rec.PermitID, s))
		}
	}

	c.logger.InfoContext(ctx, "decoded permit records",
		"records", len(records),
		"permits", len(t.Permits),
		"points", len(t.Points),
		"skipped", skipped,
	)
	return t
}

func decodePermit(rec domain.PermitRecord) domain.Permit {
	p := domain.Permit{
		PermitID:     rec.PermitID,
		UseType:      rec.Activity.PrimaryPurpose,
		Status:       rec.Status,
		Exercised:    rec.Exercised,
		ActivityType: rec.Activity.ActivityType,
	}
	if hf, ok := domain.ParseHydroFeature(rec.Activity.Feature); ok {
		p.HydroFeature = hf
	} else {
		p.HydroFeature = domain.HydroFeature(strings.ToLower(strings.TrimSpace(rec.Activity.Feature)))
	}

	p.MaxRate = dailyLimitRate(rec.Activity.Conditions)
	p.MaxDailyVolume = p.MaxRate * secondsPerDay / litresPerVolume
	p.MaxAnnualVolume = p.MaxDailyVolume * 365

	if d, err := domain.ParseDate(rec.CommencementDate); err == nil {
		p.FromDate = d
	}
	end := rec.EffectiveEndDate
	if end == "" {
		end = rec.ExpiryDate
	}
	if d, err := domain.ParseDate(end); err == nil {
		p.ToDate = d
	}
	return p
}

// dailyLimitRate reads the first abstraction condition; only daily limits yield a rate
func dailyLimitRate(conds []domain.Condition) float64 {
	for _, cond := range conds {
		if !strings.EqualFold(cond.ConditionType, "abstraction") {
			continue
		}
		if strings.EqualFold(cond.Limit.Period, "D") {
			return cond.Limit.Value / secondsPerDay * litresPerVolume
		}
		return 0
	}
	return 0
}

func decodeStation(permitID string, s domain.Station) domain.Point {
	pt := domain.Point{
		WapID:    s.StationID,
		PermitID: permitID,
		Lat:      math.NaN(),
		Lon:      math.NaN(),
	}
	if len(s.Geometry.Coordinates) >= 2 {
		pt.Lon = s.Geometry.Coordinates[0]
		pt.Lat = s.Geometry.Coordinates[1]
	}

	for k, v := range s.Properties {
		if v == nil {
			continue
		}
		switch k {
		case "sep_distance":
			pt.SepDistance = floatPtr(v)
		case "pump_aq_trans":
			pt.PumpAqTrans = floatPtr(v)
		case "pump_aq_s":
			pt.PumpAqS = floatPtr(v)
		case "stream_leakance", "stream_bed_leakance":
			pt.StreamBedK = floatPtr(v)
		case "sd_ratio":
			pt.SDRatio = floatPtr(v)
		case "method":
			pt.Method = fmt.Sprint(v)
		case "n_days":
			if f, ok := toFloat(v); ok {
				pt.NDays = int(f)
			}
		case "max_rate", "wap_max_rate":
			pt.Capacity = floatPtr(v)
		default:
			if pt.Extra == nil {
				pt.Extra = make(map[string]string)
			}
			pt.Extra[k] = toString(v)
		}
	}
	return pt
}

func floatPtr(v any) *float64 {
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) {
		return nil
	}
	return &f
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

func toString(v any) string {
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}
