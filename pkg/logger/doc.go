// Package logger is a small factory over log/slog with environment-driven
// defaults: JSON at info level for production, text at debug level for
// development.
package logger
