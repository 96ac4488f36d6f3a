// Package utils provides shared helpers for logging and scoring math.
package utils

import "go.uber.org/zap"

// NewLogger returns a zap logger. When debug is true, uses development config
// (human-readable, debug level); otherwise uses production config (JSON, info level).
func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// NewQuietLogger returns a logger that discards everything.
func NewQuietLogger() *zap.Logger {
	return zap.NewNop()
}

// QuietIf returns a no-op logger when quiet is set, else l.
func QuietIf(l *zap.Logger, quiet bool) *zap.Logger {
	if quiet || l == nil {
		return zap.NewNop()
	}
	return l
}
