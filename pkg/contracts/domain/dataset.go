package domain

import (
	"fmt"
	"strings"
)

// DatasetKind enumerates the series a caller can request
type DatasetKind int

const (
	DatasetAllocation DatasetKind = iota + 1
	DatasetMeteredAllocation
	DatasetUsage
	DatasetUsageEstimate
	DatasetDepletionRate
)

// AllDatasets lists every dataset kind in output column order
var AllDatasets = []DatasetKind{
	DatasetAllocation,
	DatasetMeteredAllocation,
	DatasetUsage,
	DatasetUsageEstimate,
	DatasetDepletionRate,
}

var datasetNames = map[DatasetKind]string{
	DatasetAllocation:        "allocation",
	DatasetMeteredAllocation: "metered_allocation",
	DatasetUsage:             "usage",
	DatasetUsageEstimate:     "usage_estimate",
	DatasetDepletionRate:     "depletion_rate",
}

var datasetColumns = map[DatasetKind][]string{
	DatasetAllocation:        {"total_allo", "sw_allo", "gw_allo"},
	DatasetMeteredAllocation: {"total_metered_allo", "sw_metered_allo", "gw_metered_allo"},
	DatasetUsage:             {"total_usage", "sw_allo_usage", "gw_allo_usage"},
	DatasetUsageEstimate:     {"total_usage_est", "sw_allo_usage_est", "gw_allo_usage_est"},
	DatasetDepletionRate:     {"sd_rate"},
}

// String returns the canonical dataset name
func (k DatasetKind) String() string {
	if n, ok := datasetNames[k]; ok {
		return n
	}
	return fmt.Sprintf("dataset(%d)", int(k))
}

// Valid reports whether k is one of the known kinds
func (k DatasetKind) Valid() bool {
	_, ok := datasetNames[k]
	return ok
}

// Columns returns the output columns contributed by the dataset
func (k DatasetKind) Columns() []string {
	return datasetColumns[k]
}

// ParseDatasetKind maps a dataset name (or its short alias) to a kind
func ParseDatasetKind(s string) (DatasetKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "allocation", "allo":
		return DatasetAllocation, nil
	case "metered_allocation", "metered_allo":
		return DatasetMeteredAllocation, nil
	case "usage":
		return DatasetUsage, nil
	case "usage_estimate", "usage_est":
		return DatasetUsageEstimate, nil
	case "depletion_rate", "sd_rates", "sd_rate":
		return DatasetDepletionRate, nil
	}
	return 0, fmt.Errorf("unknown dataset %q", s)
}
