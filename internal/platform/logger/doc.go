// Package logger provides structured logging for the service.
//
// It wraps log/slog with JSON output by default, a configurable level, and
// helpers for carrying request-scoped loggers through a context.Context.
package logger
