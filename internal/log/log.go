package log

import (
	"log/slog"
	"os"

	"calproxy/internal/config"
)

// Setup builds the application logger from the logging configuration.
// debug forces the debug level regardless of the configured level.
func Setup(cfg config.LoggingConfig, debug bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: resolveLevel(cfg.Level, debug)}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func resolveLevel(level string, debug bool) slog.Level {
	if debug {
		return slog.LevelDebug
	}
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
