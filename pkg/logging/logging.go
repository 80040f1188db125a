package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger creates a slog.Logger based on LOG_LEVEL that writes to stderr,
// leaving stdout to command output.
func NewLogger(levelString string) *slog.Logger {
	return NewLoggerWithWriter(os.Stderr, levelString)
}

// NewLoggerWithWriter creates a text slog.Logger writing to the provided writer.
func NewLoggerWithWriter(output io.Writer, levelString string) *slog.Logger {
	if output == nil {
		output = io.Discard
	}
	handler := slog.NewTextHandler(output, &slog.HandlerOptions{
		Level: ParseLevel(levelString),
	})
	return slog.New(handler)
}

// ParseLevel maps DEBUG, INFO, WARN and ERROR (any case) to slog levels.
// Unknown values fall back to INFO.
func ParseLevel(levelString string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(levelString)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
