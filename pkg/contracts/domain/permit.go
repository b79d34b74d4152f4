package domain

import (
	"strconv"
	"strings"
	"time"
)

// HydroFeature classifies the water source of a take
type HydroFeature string

const (
	Groundwater  HydroFeature = "groundwater"
	SurfaceWater HydroFeature = "surface_water"
)

// ParseHydroFeature normalises the feature strings found in permit records
// ("Groundwater", "surface water", "Take Surface Water", ...).
func ParseHydroFeature(s string) (HydroFeature, bool) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.ReplaceAll(v, "_", " ")
	switch {
	case strings.Contains(v, "ground"):
		return Groundwater, true
	case strings.Contains(v, "surface"):
		return SurfaceWater, true
	default:
		return "", false
	}
}

// DefaultSDRatio is the stream depletion ratio used when a point carries none
func (h HydroFeature) DefaultSDRatio() float64 {
	if h == SurfaceWater {
		return 1
	}
	return 0
}

// UseTypeHydroElectric is the mapped use type excluded unless explicitly requested
const UseTypeHydroElectric = "hydro_electric"

// ActivityConsumptiveTake is the activity type kept by the catalog
const ActivityConsumptiveTake = "consumptive take water"

// PermitRecord is the raw permit document as stored by the permit source
type PermitRecord struct {
	PermitID         string   `json:"permit_id" validate:"required"`
	Exercised        bool     `json:"exercised"`
	Activity         Activity `json:"activity"`
	Status           string   `json:"status"`
	CommencementDate string   `json:"commencement_date"`
	EffectiveEndDate string   `json:"effective_end_date,omitempty"`
	ExpiryDate       string   `json:"expiry_date,omitempty"`
}

// Activity describes what a permit authorises
type Activity struct {
	ActivityType   string      `json:"activity_type"`
	Feature        string      `json:"feature"`
	PrimaryPurpose string      `json:"primary_purpose"`
	Conditions     []Condition `json:"conditions"`
	Stations       []Station   `json:"stations"`
}

// Condition is a limit attached to an activity
type Condition struct {
	ConditionType string `json:"condition_type"`
	Limit         Limit  `json:"limit"`
}

// Limit is a volume allowed over a period ("D" = per day)
type Limit struct {
	Period string  `json:"period"`
	Value  float64 `json:"value"`
}

// Station is an abstraction point as stored in the permit record
type Station struct {
	StationID  string         `json:"station_id"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Geometry is a GeoJSON point, coordinates are [lon, lat]
type Geometry struct {
	Coordinates []float64 `json:"coordinates"`
}

// Permit is one catalog row: a permit for a single hydro feature
type Permit struct {
	PermitID        string       `json:"permit_id" db:"permit_id"`
	HydroFeature    HydroFeature `json:"hydro_feature" db:"hydro_feature"`
	UseType         string       `json:"use_type" db:"use_type"`
	Status          string       `json:"permit_status" db:"permit_status"`
	MaxRate         float64      `json:"max_rate" db:"max_rate"`
	MaxDailyVolume  float64      `json:"max_daily_volume" db:"max_daily_volume"`
	MaxAnnualVolume float64      `json:"max_annual_volume" db:"max_annual_volume"`
	FromDate        time.Time    `json:"from_date" db:"from_date"`
	ToDate          time.Time    `json:"to_date" db:"to_date"`
	Exercised       bool         `json:"exercised" db:"exercised"`
	ActivityType    string       `json:"activity_type" db:"activity_type"`
}

// ActiveDays returns the whole days between from and to dates
func (p Permit) ActiveDays() int {
	return DaysBetween(p.FromDate, p.ToDate)
}

// Field returns a permit attribute by column name for filtering and grouping
func (p Permit) Field(name string) (string, bool) {
	switch name {
	case "permit_id":
		return p.PermitID, true
	case "hydro_feature":
		return string(p.HydroFeature), true
	case "use_type":
		return p.UseType, true
	case "permit_status", "status":
		return p.Status, true
	case "activity_type":
		return p.ActivityType, true
	case "max_rate":
		return formatNumber(p.MaxRate), true
	case "from_date":
		return p.FromDate.Format(DateLayout), true
	case "to_date":
		return p.ToDate.Format(DateLayout), true
	}
	return "", false
}

// Point is an abstraction point (WAP) linked to one permit
type Point struct {
	WapID    string  `json:"wap_id" db:"wap_id"`
	PermitID string  `json:"permit_id" db:"permit_id"`
	Lat      float64 `json:"lat" db:"lat"`
	Lon      float64 `json:"lon" db:"lon"`

	// Aquifer properties for the depletion model
	SepDistance *float64 `json:"sep_distance,omitempty" db:"sep_distance"`
	PumpAqTrans *float64 `json:"pump_aq_trans,omitempty" db:"pump_aq_trans"`
	PumpAqS     *float64 `json:"pump_aq_s,omitempty" db:"pump_aq_s"`
	StreamBedK  *float64 `json:"stream_leakance,omitempty" db:"stream_leakance"`

	SDRatio  *float64 `json:"sd_ratio,omitempty" db:"sd_ratio"`
	Method   string   `json:"method,omitempty" db:"method"`
	NDays    int      `json:"n_days,omitempty" db:"n_days"`
	Capacity *float64 `json:"wap_max_rate,omitempty" db:"wap_max_rate"`

	Extra map[string]string `json:"extra,omitempty"`
}

// HasAquiferParams reports whether the depletion model can be loaded for the point
func (p Point) HasAquiferParams() bool {
	return positive(p.SepDistance) && positive(p.PumpAqTrans) && positive(p.PumpAqS)
}

// Field returns a point attribute by column name for filtering and grouping
func (p Point) Field(name string) (string, bool) {
	switch name {
	case "wap_id", "wap":
		return p.WapID, true
	case "permit_id":
		return p.PermitID, true
	case "lat":
		return formatNumber(p.Lat), true
	case "lon":
		return formatNumber(p.Lon), true
	case "method":
		return p.Method, true
	case "n_days":
		return strconv.Itoa(p.NDays), true
	}
	if v, ok := p.Extra[name]; ok {
		return v, true
	}
	return "", false
}

func positive(v *float64) bool {
	return v != nil && *v > 0
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
