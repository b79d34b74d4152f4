// Package gapfill estimates usage for takes that lack a metered history.
//
// Work is done on the monthly series. A take (permit at a point) with at
// least MinMonths months of non-zero metered allocation is a donor, and a
// take with no metered month at all is a recipient. Partly metered takes are
// left to their metered values. For each recipient the donors of the same use
// type within BufferDistance metres supply a mean usage/allocation ratio per
// calendar month, which is applied to the recipient's own allocation. A month
// with no donor ratio stays NaN.
//
// Daily series are produced by ExpandDaily over the session window and weekly
// ones by summing the daily expansion. Actual metered usage always replaces an estimate.
package gapfill
