// Package app wires configuration, telemetry, storage and the pipeline
// session into one process and manages its lifecycle.
//
// # Initialization Flow
//
//	1. Map config sections onto pipeline options and a storage driver
//	2. Start OpenTelemetry providers and register business and runtime metrics
//	3. Open the storage backend (s3, sqlite, postgres, file or memory)
//	4. Create the memoizing pipeline session and the exporter
//
// Binaries either call Run directly (batch mode) or Serve to expose the HTTP
// API. Serve handles SIGINT and SIGTERM by draining active requests within
// the configured shutdown timeout.
//
// # Usage
//
//	a, err := app.New(ctx, cfg, logger)
//	if err != nil {
//	    return err
//	}
//	defer a.Stop(context.Background())
//	return a.Serve(ctx)
//
// Initialization errors are returned to the caller; the package never calls
// os.Exit.
package app
