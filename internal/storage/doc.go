// Package storage provides the permit source and raw usage store
// collaborators of the pipeline.
//
// Drivers: s3 (permits JSON object, one usage CSV object per point), sqlite
// (local key-value file), postgres, file (JSON file plus a CSV directory) and
// memory. A point without stored usage yields no rows, never an error.
// Fetcher reads many points concurrently under a rate limit.
package storage
