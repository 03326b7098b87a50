// Package logger builds the application slog.Logger: text output in
// development, JSON in production, optionally written to a size-rotated file.
package logger
