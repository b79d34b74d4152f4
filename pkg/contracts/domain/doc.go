// Package domain holds the shared data model: permit records and their
// decoded catalog rows, points, the derived series keyed by
// (permit_id, wap_id, date), frequencies and the result table.
package domain
