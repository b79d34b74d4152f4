package exporter

import (
	"fmt"
	"io"
	"math"

	"github.com/xuri/excelize/v2"

	"github.com/mullenkamp/nz-allo-usage-tools/pkg/contracts/domain"
)

// WriteXLSX writes t as a single-sheet workbook. Values are numeric cells;
// unknown values are left blank.
func (e *Exporter) WriteXLSX(w io.Writer, t *domain.ResultTable) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := e.opts.SheetName
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("open stream writer: %w", err)
	}
	header := t.Header()
	if err := sw.SetColWidth(1, len(header), 16); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	cells := make([]interface{}, len(header))
	for i, h := range header {
		cells[i] = excelize.Cell{StyleID: bold, Value: h}
	}
	if err := sw.SetRow("A1", cells); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, r := range t.Rows {
		row := make([]interface{}, 0, len(header))
		for _, g := range r.Group {
			row = append(row, g)
		}
		row = append(row, r.Date.Format(domain.DateLayout))
		for _, v := range r.Values {
			if math.IsNaN(v) {
				row = append(row, nil)
			} else {
				row = append(row, v)
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
