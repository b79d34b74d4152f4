// Package config loads the application configuration.
//
// Values are layered, later sources winning:
//
//	1. Default()
//	2. YAML file (path argument, ALLO_CONFIG_FILE, config.yaml or configs/config.yaml)
//	3. .env in the working directory (never overrides variables already set)
//	4. ALLO_* environment variables
//
// Nested sections map to underscore-joined names:
//
//	ALLO_PIPELINE_BUFFER_DISTANCE=25000
//	ALLO_PIPELINE_METERED_MODE=permit_level
//	ALLO_SOURCES_DRIVER=s3
//	ALLO_SOURCES_BUCKET=allo-usage
//	ALLO_FILTER_USE_TYPE_MAPPING="Hydroelectric:hydro_electric,Stockwater:stockwater"
//	ALLO_LOGGING_LEVEL=debug
//
// The loaded struct is validated with go-playground/validator tags.
package config
