// Package exporter writes assembled result tables to CSV, XLSX or JSON.
//
// Every format carries the same layout: the group columns, the period date
// (YYYY-MM-DD) and one column per requested dataset. Unknown values, such as
// usage for a period with no readings, are written as empty CSV cells, blank
// spreadsheet cells or JSON null.
//
//	exp := exporter.New(exporter.DefaultOptions(), logger)
//	err := exp.WriteFile(ctx, "out/usage.xlsx", table, "")
package exporter
