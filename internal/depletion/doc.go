// Package depletion converts estimated groundwater extraction into stream
// depletion rates.
//
// Each groundwater take with complete aquifer parameters gets a freshly
// loaded Model fed with the take's whole daily pumping. The point's method is
// used when the loaded model offers it, otherwise the model default.
// Surface-water takes deplete the stream directly, so their estimate passes
// through unchanged.
package depletion
