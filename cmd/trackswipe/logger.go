package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

const (
	logFormatText = "text"
	logFormatJSON = "json"
)

// parseLogLevel maps a config level name onto a slog level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "error":
		return slog.LevelError, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s (must be error, warn, info, or debug)", level)
	}
}

func validLogFormat(format string) bool {
	switch strings.ToLower(format) {
	case logFormatText, logFormatJSON:
		return true
	}
	return false
}

// newLogger builds the daemon logger. Every record carries component=trackswipe
// so the output can be told apart when it shares a journal with the compositor.
func newLogger(w io.Writer, cfg LoggingConfig) (*slog.Logger, error) {
	level, err := parseLogLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case logFormatText, "":
		h = slog.NewTextHandler(w, opts)
	case logFormatJSON:
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("invalid log format: %s (must be text or json)", cfg.Format)
	}
	return slog.New(h).With("component", "trackswipe"), nil
}
