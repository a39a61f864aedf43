package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// New constructs a JSON slog.Logger on stderr at the provided level
func New(lvl slog.Level) *slog.Logger {
	return NewWithWriter(os.Stderr, lvl)
}

// NewWithWriter constructs a JSON slog.Logger writing to w
func NewWithWriter(w io.Writer, lvl slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: lvl,
	})
	return slog.New(handler).With(slog.String("component", "skein"))
}

// ParseLevel maps debug, info, warn and error to slog levels
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
