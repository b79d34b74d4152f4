// Package shared holds cross-package helpers that belong to no single layer.
//
// The testutil subpackage captures slog output in tests:
//
//	logger, logs := testutil.NewTestLogger(t)
//	session, _ := pipeline.NewSession(deps, opts, logger)
//	...
//	testutil.AssertLogContains(t, logs, slog.LevelInfo, "request completed")
package shared
