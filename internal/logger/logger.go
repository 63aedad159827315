// Package logger configures the process-wide slog logger for smsboxd.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Initialize installs a logger writing to stdout as the slog default and
// returns it. level is one of debug, info, warn or error; anything else
// means info.
func Initialize(level string, useJSON bool) *slog.Logger {
	return New(os.Stdout, level, useJSON)
}

// New builds a logger writing to w and installs it as the slog default.
func New(w io.Writer, level string, useJSON bool) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(level),
		AddSource: true,
	}

	var handler slog.Handler
	if useJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}

// ParseLevel converts a level name to slog.Level. Unknown names are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
