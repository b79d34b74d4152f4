// Package pipeline assembles allocation, usage, estimate and depletion series
// into one result table per request.
//
// A Session owns the collaborators (permit source, usage store, spatial join
// and depletion model) and an explicit memo of stage results keyed by stage,
// frequency and catalog version. Requests at a new frequency purge every
// frequency-dependent entry before anything is recomputed. The catalog and the
// raw usage fetch survive frequency changes and are only dropped by Reload.
//
// Each dataset kind maps to one stage in a dispatch table:
//
//	allocation          catalog -> allocation series -> point apportionment
//	metered_allocation  allocation + usage -> reconciliation
//	usage               raw fetch -> cleaning -> resample -> permit apportionment
//	usage_estimate      monthly donor transfer -> daily expansion -> metered override
//	depletion_rate      daily usage estimate -> depletion model
//
// Annual requests are computed monthly and summed during assembly. Sums keep a
// cell missing only when every contribution is missing.
package pipeline
