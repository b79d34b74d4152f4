// Package middleware holds the HTTP middleware of the query API: request IDs
// that double as log trace IDs, per-client rate limiting, request deadlines,
// security headers and OpenTelemetry tracing with request metrics.
package middleware
