package pipeline

import (
	"slices"
	"strings"

	apperrors "github.com/mullenkamp/nz-allo-usage-tools/internal/errors"
	"github.com/mullenkamp/nz-allo-usage-tools/pkg/contracts/domain"
)

// DefaultGroupBy is the grouping used when a request names none
var DefaultGroupBy = []string{"permit_id", "wap_id"}

// Request selects the datasets, frequency and grouping of one run
type Request struct {
	Datasets  []domain.DatasetKind
	Frequency domain.Frequency
	GroupBy   []string

	// UsageAlloRatio overrides the session's excess-usage limit when positive
	UsageAlloRatio float64
}

// ParseRequest builds a request from caller-supplied names
func ParseRequest(datasets []string, freq string, groupBy []string) (Request, error) {
	var req Request
	if len(datasets) == 0 {
		return Request{}, apperrors.NewValidation("pipeline", "at least one dataset is required")
	}
	for _, name := range datasets {
		for _, part := range strings.Split(name, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			k, err := domain.ParseDatasetKind(part)
			if err != nil {
				return Request{}, apperrors.NewValidation("pipeline", "%v", err).WithContext("dataset", part)
			}
			req.Datasets = append(req.Datasets, k)
		}
	}
	f, err := domain.ParseFrequency(freq)
	if err != nil {
		return Request{}, apperrors.NewValidation("pipeline", "%v", err).WithContext("frequency", freq)
	}
	req.Frequency = f
	for _, g := range groupBy {
		for _, part := range strings.Split(g, ",") {
			if p := strings.TrimSpace(part); p != "" {
				req.GroupBy = append(req.GroupBy, p)
			}
		}
	}
	return req, nil
}

// normalize validates the request and fills defaults. Datasets are returned
// deduplicated in output column order; date is dropped from GroupBy since it
// is always part of the key.
func (r Request) normalize() (Request, error) {
	if len(r.Datasets) == 0 {
		return Request{}, apperrors.NewValidation("pipeline", "at least one dataset is required")
	}
	for _, k := range r.Datasets {
		if !k.Valid() {
			return Request{}, apperrors.NewValidation("pipeline", "unknown dataset %s", k)
		}
	}
	if _, err := domain.ParseFrequency(string(r.Frequency)); err != nil {
		return Request{}, apperrors.NewValidation("pipeline", "%v", err).WithContext("frequency", string(r.Frequency))
	}

	out := r
	out.Datasets = nil
	for _, k := range domain.AllDatasets {
		if slices.Contains(r.Datasets, k) {
			out.Datasets = append(out.Datasets, k)
		}
	}

	out.GroupBy = nil
	groups := r.GroupBy
	if len(groups) == 0 {
		groups = DefaultGroupBy
	}
	for _, g := range groups {
		if g == "date" || slices.Contains(out.GroupBy, g) {
			continue
		}
		out.GroupBy = append(out.GroupBy, g)
	}
	return out, nil
}

// columns returns the value columns of the requested datasets
func (r Request) columns() []string {
	var cols []string
	for _, k := range r.Datasets {
		cols = append(cols, k.Columns()...)
	}
	return cols
}

func (r Request) wants(k domain.DatasetKind) bool {
	return slices.Contains(r.Datasets, k)
}
