// Package validation checks local input and output paths before a run
// starts. Missing or mistyped paths are reported as validation errors.
package validation
