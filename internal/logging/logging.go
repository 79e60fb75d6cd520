package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// ParseLevel maps a config or flag value onto a slog level.
func ParseLevel(value string) (slog.Level, error) {
	level, ok := levels[strings.ToLower(strings.TrimSpace(value))]
	if !ok {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", value)
	}
	return level, nil
}

// New builds the process logger. format is one of pretty, json or text.
func New(w io.Writer, format string, level slog.Level) *slog.Logger {
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	case "text":
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	default:
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	}
	return slog.New(handler)
}

// Err is the attribute every component uses to log an error.
func Err(err error) slog.Attr {
	return slog.String("error", err.Error())
}
