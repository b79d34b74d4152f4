package domain

import (
	"slices"
	"time"
)

// ResultRow is one output row: the group values, the period date and one
// value per column. NaN marks an unknown cell.
type ResultRow struct {
	Group  []string
	Date   time.Time
	Values []float64
}

// ResultTable is the assembled output of a pipeline request
type ResultTable struct {
	Frequency Frequency
	GroupBy   []string
	Columns   []string
	Rows      []ResultRow
}

// Header returns the group columns, date and value columns in output order
func (t *ResultTable) Header() []string {
	h := make([]string, 0, len(t.GroupBy)+1+len(t.Columns))
	h = append(h, t.GroupBy...)
	h = append(h, "date")
	return append(h, t.Columns...)
}

// ColumnIndex returns the position of a value column, or -1
func (t *ResultTable) ColumnIndex(name string) int {
	return slices.Index(t.Columns, name)
}

// Value returns row i's value for column name, false when either is unknown
func (t *ResultTable) Value(i int, name string) (float64, bool) {
	j := t.ColumnIndex(name)
	if j < 0 || i < 0 || i >= len(t.Rows) {
		return 0, false
	}
	return t.Rows[i].Values[j], true
}
