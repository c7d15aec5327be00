package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps a LOG_LEVEL value to a slog level. Unknown values fall
// back to def.
func ParseLevel(s string, def slog.Level) slog.Level {
	switch strings.ToLower(s) {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "production", "prod":
		return slog.LevelError
	}
	return def
}

// Init installs the default CLI logger on stderr. Without LOG_LEVEL only
// errors are shown so log lines never interleave with the UI.
func Init() {
	level := slog.LevelError
	if l, ok := os.LookupEnv("LOG_LEVEL"); ok {
		level = ParseLevel(l, level)
	}

	slog.SetDefault(slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}),
	))
}

// New builds the server logger. format is "text" or "json".
func New(level, format string) *slog.Logger {
	return NewWriter(os.Stderr, level, format)
}

func NewWriter(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level, slog.LevelInfo)}

	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}
