// Package allocation builds periodic allocation series from the permit
// catalog and apportions them to abstraction points.
//
// Daily and weekly amounts come from max_daily_volume; monthly amounts are
// max_annual_volume pro-rated by active days and rounded half to even.
// Apportionment is an equal split across a permit's points unless every point
// has a capacity, in which case it is capacity weighted. The surface-water
// share of each point is total * sd_ratio.
package allocation
