// Package http serves pipeline results over a small query API.
//
// A request names the datasets, the frequency and the grouping:
//
//	GET /api/v1/timeseries?datasets=allocation,usage&freq=M&group_by=permit_id&format=csv
//
//	POST /api/v1/timeseries
//	{"datasets": ["usage_estimate"], "freq": "A-JUN", "usage_allo_ratio": 3}
//
// The response is JSON by default; format=csv or format=xlsx stream the same
// table as a file. Validation failures answer 400 and permit source or usage
// store failures answer 502, both as RFC 7807 problem documents.
//
// One pipeline session backs every request. It memoizes stages across
// requests, so runs are serialized and POST /api/v1/reload discards the cache
// when the upstream data has changed.
//
// GET /api/v1/ws upgrades to a websocket that receives a message for every
// pipeline stage computed while it is open.
package http
