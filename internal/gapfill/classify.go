package gapfill

import (
	"sort"

	"github.com/mullenkamp/nz-allo-usage-tools/pkg/contracts/domain"
)

// Take identifies one permit at one point
type Take struct {
	PermitID string
	WapID    string
}

// Classes splits takes into donors (enough metered history) and recipients
// (no metered history). Partly metered takes belong to neither.
type Classes struct {
	Donors     map[Take]bool
	Recipients map[Take]bool
}

// DonorList returns the donors in a stable order
func (c Classes) DonorList() []Take {
	return sortedTakes(c.Donors)
}

// RecipientList returns the recipients in a stable order
func (c Classes) RecipientList() []Take {
	return sortedTakes(c.Recipients)
}

// Classify marks every take with at least minMonths months of non-zero
// metered allocation as a donor, and every take whose metered allocation is
// zero in all of its observed months as a recipient.
func Classify(monthlyMetered []domain.MeteredAllocationRow, minMonths int) Classes {
	months := make(map[Take]int)
	for _, m := range monthlyMetered {
		t := Take{m.PermitID, m.WapID}
		if _, ok := months[t]; !ok {
			months[t] = 0
		}
		if m.TotalMeteredAllo > 0 {
			months[t]++
		}
	}

	c := Classes{Donors: make(map[Take]bool), Recipients: make(map[Take]bool)}
	for t, n := range months {
		switch {
		case n >= minMonths:
			c.Donors[t] = true
		case n == 0:
			c.Recipients[t] = true
		}
	}
	return c
}

func sortedTakes(set map[Take]bool) []Take {
	out := make([]Take, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PermitID != out[j].PermitID {
			return out[i].PermitID < out[j].PermitID
		}
		return out[i].WapID < out[j].WapID
	})
	return out
}
