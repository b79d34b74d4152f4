package exporter

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/mullenkamp/nz-allo-usage-tools/pkg/contracts/domain"
)

// DefaultPrecision is the number of decimals written for values
const DefaultPrecision = 3

// Options configures table export
type Options struct {
	// Precision is the decimals written to CSV; negative means shortest exact
	Precision int
	// BOMPrefix adds a UTF-8 BOM so Excel recognizes CSV encoding
	BOMPrefix bool
	// SheetName names the XLSX worksheet
	SheetName string
}

// DefaultOptions returns CSV with three decimals and no BOM
func DefaultOptions() Options {
	return Options{Precision: DefaultPrecision, SheetName: "timeseries"}
}

// Exporter writes result tables as CSV, XLSX or JSON
type Exporter struct {
	opts   Options
	logger *slog.Logger
}

// New creates an exporter
func New(opts Options, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SheetName == "" {
		opts.SheetName = DefaultOptions().SheetName
	}
	return &Exporter{
		opts:   opts,
		logger: logger.With(slog.String("component", "exporter")),
	}
}

// Write encodes t to w in format f
func (e *Exporter) Write(ctx context.Context, w io.Writer, t *domain.ResultTable, f Format) error {
	var err error
	switch f {
	case FormatXLSX:
		err = e.WriteXLSX(w, t)
	case FormatJSON:
		err = e.WriteJSON(w, t)
	default:
		err = e.WriteCSV(w, t)
	}
	if err != nil {
		return err
	}
	e.logger.DebugContext(ctx, "table exported",
		slog.String("format", string(f)),
		slog.Int("rows", len(t.Rows)))
	return nil
}

// WriteFile writes t to path, creating its directory. The format is taken
// from the extension when f is empty.
func (e *Exporter) WriteFile(ctx context.Context, path string, t *domain.ResultTable, f Format) (err error) {
	if f == "" {
		f = FormatFromPath(path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close file: %w", cerr)
		}
	}()

	if err := e.Write(ctx, file, t, f); err != nil {
		return err
	}
	e.logger.InfoContext(ctx, "result written",
		slog.String("path", path),
		slog.String("format", string(f)),
		slog.Int("rows", len(t.Rows)))
	return nil
}

// WriteCSV writes the header and rows; unknown values are empty cells
func (e *Exporter) WriteCSV(w io.Writer, t *domain.ResultTable) error {
	if e.opts.BOMPrefix {
		if _, err := w.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
			return fmt.Errorf("write BOM: %w", err)
		}
	}
	writer := csv.NewWriter(w)
	for i, rec := range Records(t, e.opts.Precision) {
		if err := writer.Write(rec); err != nil {
			return fmt.Errorf("write record %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

type jsonTable struct {
	Frequency string           `json:"frequency"`
	GroupBy   []string         `json:"group_by"`
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
}

// WriteJSON writes the table as an object of row maps; unknown values are null
func (e *Exporter) WriteJSON(w io.Writer, t *domain.ResultTable) error {
	out := jsonTable{
		Frequency: string(t.Frequency),
		GroupBy:   t.GroupBy,
		Columns:   t.Columns,
		Rows:      make([]map[string]any, 0, len(t.Rows)),
	}
	for _, r := range t.Rows {
		row := make(map[string]any, len(r.Group)+1+len(r.Values))
		for i, g := range t.GroupBy {
			row[g] = r.Group[i]
		}
		row["date"] = r.Date.Format(domain.DateLayout)
		for i, c := range t.Columns {
			if math.IsNaN(r.Values[i]) {
				row[c] = nil
			} else {
				row[c] = r.Values[i]
			}
		}
		out.Rows = append(out.Rows, row)
	}
	if err := json.NewEncoder(w).Encode(out); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}
