package exporter

import (
	"math"
	"path/filepath"
	"strconv"
	"strings"

	apperrors "github.com/mullenkamp/nz-allo-usage-tools/internal/errors"
	"github.com/mullenkamp/nz-allo-usage-tools/pkg/contracts/domain"
)

// Format is an output encoding for a result table
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatXLSX, FormatJSON:
		return f, nil
	case "":
		return FormatCSV, nil
	default:
		return "", apperrors.NewValidation("exporter", "unsupported output format %q", s)
	}
}

// FormatFromPath infers the format from a file extension, defaulting to CSV
func FormatFromPath(path string) Format {
	if f, err := ParseFormat(strings.TrimPrefix(filepath.Ext(path), ".")); err == nil {
		return f
	}
	return FormatCSV
}

// ContentType returns the HTTP media type of f
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatJSON:
		return "application/json"
	default:
		return "text/csv; charset=utf-8"
	}
}

// formatFloat renders v with the given decimals; unknown values are empty
func formatFloat(v float64, precision int) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', precision, 64)
}

// Records renders the table as header plus string rows
func Records(t *domain.ResultTable, precision int) [][]string {
	out := make([][]string, 0, len(t.Rows)+1)
	out = append(out, t.Header())
	for _, r := range t.Rows {
		rec := make([]string, 0, len(r.Group)+1+len(r.Values))
		rec = append(rec, r.Group...)
		rec = append(rec, r.Date.Format(domain.DateLayout))
		for _, v := range r.Values {
			rec = append(rec, formatFloat(v, precision))
		}
		out = append(out, rec)
	}
	return out
}
