// Package catalog turns raw permit records into the filtered permit and
// abstraction point tables the reconciliation pipeline works from.
//
// # Decoding
//
// Each permit record becomes one permit row per activity feature and one point
// row per station. The daily abstraction limit of the first "abstraction"
// condition is converted to a rate (limit / 86400 * 1000) and the daily and
// annual volumes are derived from it. Station properties populate the aquifer
// fields of the point and anything unrecognised is kept as a string extra so it
// can still be used for filtering and grouping.
//
// # Filtering
//
// Filter applies the selection rules in a fixed order:
//
//  1. exercised, consumptive-take permits only
//  2. positive max_rate
//  3. caller predicates on permit and point fields (set membership, ANDed)
//  4. optional hydro-electric exclusion
//  5. from and to dates present
//  6. more than 31 days of overlap with each end of the window
//  7. active span of more than 31 days
//  8. one row per (permit_id, hydro_feature) with the largest limits
//
// Points are then restricted to surviving permits and permits to those that
// kept at least one point. An empty result is a validation error.
package catalog
