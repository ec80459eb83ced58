// Package logger provides structured logging built on zerolog.
package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New creates a zerolog logger at the given level. JSON output goes to stdout
// as-is; otherwise a human-readable console writer is used.
func New(levelStr string, jsonOutput bool) zerolog.Logger {
	return NewWithWriter(os.Stdout, levelStr, jsonOutput)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, levelStr string, jsonOutput bool) zerolog.Logger {
	out := w
	if !jsonOutput {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}

	return zerolog.New(out).Level(ParseLevel(levelStr)).With().Timestamp().Logger()
}

// ParseLevel converts a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Component returns a child logger tagged with the component name.
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

// Truncate shortens s for log previews.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return s[:maxLen-3] + "..."
}
