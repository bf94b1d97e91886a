package asyncauth

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger creates a structured logger writing to w.
// If writer is nil, os.Stderr is used. Format "json" selects the JSON handler, anything else text.
func NewLogger(writer io.Writer, level slog.Level, format string) *slog.Logger {
	if writer == nil {
		writer = os.Stderr
	}
	options := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(writer, options))
	}
	return slog.New(slog.NewTextHandler(writer, options))
}

// ParseLevel converts a level name (debug, info, warn, error) to slog.Level, defaulting to info.
func ParseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// DefaultLogger is the logger components use when none is configured.
var DefaultLogger = NewLogger(os.Stderr, slog.LevelInfo, "text")
