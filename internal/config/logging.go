// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

package config

import (
	"io"
	"log/slog"
	"strings"
)

// ParseLevel maps a logging.level value to a slog level. Unknown values
// fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// NewLogger builds a logger for the logging section. verbose forces debug.
func NewLogger(w io.Writer, cfg LoggingConfig, verbose bool) *slog.Logger {
	level := ParseLevel(cfg.Level)
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
