// Package pkg provides shared utilities for the USB power supervisor:
// structured logging and sentinel errors used across every internal
// package.
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel error types for USB transfer and supervisor errors
//   - Component identifiers for log filtering
//
// This package itself has zero external dependencies, relying only on the
// Go standard library; other packages in the module bring in their own.
//
// # Logging
//
// The logging subsystem wraps [log/slog] with component context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentSupervisor, "port reset", "port", "1-1.2")
//
// # Errors
//
// Common errors are defined as sentinel values:
//
//	if errors.Is(err, pkg.ErrLockHeld) {
//	    // Another instance is already running.
//	}
package pkg
