package domain

import (
	"math"
	"time"
)

// Key is the primary key shared by every derived series
type Key struct {
	PermitID string    `json:"permit_id"`
	WapID    string    `json:"wap_id"`
	Date     time.Time `json:"date"`
}

// Less orders keys by permit, point, then date
func (k Key) Less(o Key) bool {
	if k.PermitID != o.PermitID {
		return k.PermitID < o.PermitID
	}
	if k.WapID != o.WapID {
		return k.WapID < o.WapID
	}
	return k.Date.Before(o.Date)
}

// QualityCode flags how a usage value was adjusted
type QualityCode int

const (
	QualityClean    QualityCode = 0
	QualityAdjusted QualityCode = 1 // negative clipped or excess-usage outlier
	QualitySpike    QualityCode = 2 // single-day spike replaced by neighbour mean
)

// PermitAllocation is the period allocation of a permit before point apportionment
type PermitAllocation struct {
	PermitID     string       `json:"permit_id"`
	HydroFeature HydroFeature `json:"hydro_feature"`
	Date         time.Time    `json:"date"`
	Amount       float64      `json:"total_allo"`
}

// AllocationRow is the point-level allocation with its surface/groundwater split
type AllocationRow struct {
	Key
	TotalAllo float64 `json:"total_allo"`
	SwAllo    float64 `json:"sw_allo"`
	GwAllo    float64 `json:"gw_allo"`
}

// UsageReading is one raw daily meter value
type UsageReading struct {
	WapID    string    `json:"wap_id"`
	Date     time.Time `json:"date"`
	WaterUse float64   `json:"water_use"`
}

// UsageRow is cleaned point usage at a series frequency
type UsageRow struct {
	WapID       string      `json:"wap_id"`
	Date        time.Time   `json:"date"`
	TotalUsage  float64     `json:"total_usage"`
	QualityCode QualityCode `json:"quality_code"`
}

// SplitUsageRow is usage apportioned to a permit at a point. TotalUsage is NaN
// when the apportioned value was rejected as an outlier.
type SplitUsageRow struct {
	Key
	TotalUsage  float64     `json:"total_usage"`
	SwUsage     float64     `json:"sw_allo_usage"`
	GwUsage     float64     `json:"gw_allo_usage"`
	QualityCode QualityCode `json:"quality_code"`
}

// Reported reports whether the row carries a usable metered value
func (r SplitUsageRow) Reported() bool {
	return !math.IsNaN(r.TotalUsage)
}

// MeteredAllocationRow is allocation restricted to keys corroborated by usage
type MeteredAllocationRow struct {
	Key
	TotalMeteredAllo float64 `json:"total_metered_allo"`
	SwMeteredAllo    float64 `json:"sw_metered_allo"`
	GwMeteredAllo    float64 `json:"gw_metered_allo"`
}

// EstimateRow is estimated usage; Metered is set where actual usage replaced the estimate
type EstimateRow struct {
	Key
	TotalUsageEst float64 `json:"total_usage_est"`
	SwUsageEst    float64 `json:"sw_allo_usage_est"`
	GwUsageEst    float64 `json:"gw_allo_usage_est"`
	Metered       bool    `json:"metered"`
}

// DepletionRow is the stream depletion rate for a key
type DepletionRow struct {
	Key
	SDRate float64 `json:"sd_rate"`
}
