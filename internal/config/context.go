package config

import (
	"context"
	"log/slog"
)

// currentConfig holds the most recently loaded configuration. Command
// packages read it through GetCurrentConfig instead of importing the
// CLI wiring, which keeps the dependency direction one-way.
var currentConfig *Config

// GetCurrentConfig returns the configuration from the last successful
// Load, or nil if none has been loaded yet.
func GetCurrentConfig() *Config {
	return currentConfig
}

// ResetConfig clears the stored configuration. Intended for tests.
func ResetConfig() {
	currentConfig = nil
}

// loggerKey is the context key under which the CLI stores the
// structured logger for command handlers.
type loggerKey struct{}

// LoggerKey returns the context key for the logger.
func LoggerKey() any {
	return loggerKey{}
}

// GetLogger extracts the logger from the context, or returns a logger
// that discards everything if none was stored.
func GetLogger(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.New(slog.DiscardHandler)
}
