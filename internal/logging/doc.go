// Package logging provides structured logging for axectl.
//
// This package wraps the zap logger with convenience functions for the
// logging patterns used throughout the tool. The CLI is silent by default:
// unless AXECTL_LOG_LEVEL is set (or a level is passed explicitly to
// Initialize), all log calls hit a nop logger so command output stays clean.
//
// # Log Levels
//
//   - Debug: per-host probe results, registry merge outcomes
//   - Info: discovery runs, server requests, monitor ticks
//   - Warn: non-fatal issues (cache load failures, device went offline)
//   - Error: fatal issues (server startup failures)
//
// # Structured Logging
//
// All log functions use structured fields for queryability:
//
//	logging.Info("Discovery finished",
//	    zap.String("network", "192.168.1.0/24"),
//	    zap.Int("devices_found", 4),
//	)
//
// # Thread Safety
//
// All logging functions are safe for concurrent use. The underlying zap
// logger handles synchronization automatically.
package logging
