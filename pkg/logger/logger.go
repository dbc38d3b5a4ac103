package logger

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Log is the process-wide structured logger. Call Init (or InitWithLevel)
// once during startup before any other package logs.
var Log *slog.Logger

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// Init initializes the global logger. Level and sink may be overridden via
// MODMAILD_LOG_LEVEL and MODMAILD_LOG_SINK (e.g. "file:/var/log/modmaild.log").
func Init() {
	InitWithLevel("")
}

// InitWithLevel initializes the global logger honoring the provided level
// string ("debug", "info", "warn", "error"). An empty level falls back to
// the MODMAILD_LOG_LEVEL environment variable.
func InitWithLevel(level string) {
	if level == "" {
		level = os.Getenv("MODMAILD_LOG_LEVEL")
	}
	lv := parseLevel(level)

	sink := os.Getenv("MODMAILD_LOG_SINK")
	if strings.HasPrefix(sink, "file:") {
		path := strings.TrimPrefix(sink, "file:")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err == nil {
			Log = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: lv}))
			return
		}
		fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", path, err)
	}
	Log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lv}))
}

func ensure() *slog.Logger {
	if Log == nil {
		Init()
	}
	return Log
}

// Debug logs at debug level with key/value args.
func Debug(msg string, args ...any) { ensure().Debug(msg, args...) }

// Info logs at info level with key/value args.
func Info(msg string, args ...any) { ensure().Info(msg, args...) }

// Warn logs at warn level with key/value args.
func Warn(msg string, args ...any) { ensure().Warn(msg, args...) }

// Error logs at error level with key/value args.
func Error(msg string, args ...any) { ensure().Error(msg, args...) }
