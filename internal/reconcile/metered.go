// Package reconcile restricts allocation to the keys corroborated by metered usage.
package reconcile

import (
	"fmt"
	"strings"
	"time"

	"github.com/mullenkamp/nz-allo-usage-tools/pkg/contracts/domain"
)

// Mode selects how missing usage zeroes metered allocation
type Mode string

const (
	// Proportional zeroes a key whenever that exact key has no usage
	Proportional Mode = "proportional"
	// PermitLevel zeroes a key only when no point of the permit reported on that date
	PermitLevel Mode = "permit_level"
)

// ParseMode parses a reconciliation mode, empty means proportional
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", Proportional:
		return Proportional, nil
	case PermitLevel, "permit-level", "permit":
		return PermitLevel, nil
	}
	return "", fmt.Errorf("unknown metered allocation mode %q", s)
}

// MeteredAllocation copies the allocation series, zeroing keys without
// reported usage. Rejected outliers (NaN usage) count as not reported.
func MeteredAllocation(alloc []domain.AllocationRow, split []domain.SplitUsageRow, mode Mode) []domain.MeteredAllocationRow {
	type permitDate struct {
		permit string
		date   time.Time
	}

	reported := make(map[domain.Key]bool, len(split))
	permitReports := make(map[permitDate]int)
	for _, s := range split {
		if !s.Reported() {
			continue
		}
		if !reported[s.Key] {
			reported[s.Key] = true
			permitReports[permitDate{s.PermitID, s.Date}]++
		}
	}

	out := make([]domain.MeteredAllocationRow, len(alloc))
	for i, a := range alloc {
		metered := reported[a.Key]
		if mode == PermitLevel {
			metered = permitReports[permitDate{a.PermitID, a.Date}] > 0
		}
		out[i] = domain.MeteredAllocationRow{Key: a.Key}
		if metered {
			out[i].TotalMeteredAllo = a.TotalAllo
			out[i].SwMeteredAllo = a.SwAllo
			out[i].GwMeteredAllo = a.GwAllo
		}
	}
	return out
}
