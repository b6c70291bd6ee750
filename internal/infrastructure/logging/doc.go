// Package logging provides structured logging using uber/zap.
//
// This package offers production-ready logging with two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Log Levels:
//   - Debug: Verbose debugging information
//   - Info: General informational messages
//   - Warn: Warning messages
//   - Error: Error messages
//   - Fatal: Fatal errors (exits process)
//
// Features:
//   - Structured fields for context
//   - Configurable output paths (stderr by default; stdout is left to the process)
//   - A process field so runtime and router logs can be interleaved
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	log := logger.Component("router")
//	log.Info("Runtime connected", zap.String("addr", addr))
//	log.Error("Switch failed", zap.Error(err))
package logging
