// Package usage cleans raw metered point usage, resamples it to a series
// frequency and apportions it back to the permits that share each point.
//
// Quality codes: 0 clean, 1 clipped negative or rejected excess-usage
// outlier, 2 spike replaced by the neighbour mean. Rejected outliers stay in
// the output as NaN so downstream sums treat them as missing, not zero.
package usage
