// Package logger is a thin leveled facade over log/slog used across the application
package logger

import (
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var current atomic.Pointer[slog.Logger]

func init() {
	current.Store(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))
}

// Init configures the default logger with the given level name.
// Unknown levels fall back to info.
func Init(level string) {
	InitWithFormat(level, "text")
}

// InitWithFormat configures the default logger level and output format ("text" or "json")
func InitWithFormat(level, format string) {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	l := slog.New(h)
	current.Store(l)
	slog.SetDefault(l)
}

// ParseLevel maps a level name to slog.Level
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

// Default returns the configured logger for components that take an injected *slog.Logger
func Default() *slog.Logger {
	return current.Load()
}

func Debug(msg string, args ...any) {
	current.Load().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	current.Load().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	current.Load().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	current.Load().Error(msg, args...)
}
