// Package logger provides structured logging for the service.
//
// It builds a log/slog JSON logger from configuration and carries request or
// task scoped loggers through context.Context.
package logger
