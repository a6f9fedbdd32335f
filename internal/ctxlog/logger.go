package ctxlog

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/fatih/color"
	"github.com/lmittmann/tint"
)

// LevelSilent is above every level the compiler logs at.
const LevelSilent = slog.Level(100)

// ParseLevel maps "debug", "info", "warn", "error" and "silent" to a level.
func ParseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	case "silent":
		return LevelSilent, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// New returns a JSON logger for format "json" and a coloured human logger
// otherwise.
func New(w io.Writer, level slog.Level, format string) *slog.Logger {
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:       level,
		TimeFormat:  time.TimeOnly,
		NoColor:     color.NoColor,
		ReplaceAttr: levelColor,
	}))
}

func levelColor(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey || len(groups) != 0 || color.NoColor {
		return a
	}
	level, ok := a.Value.Any().(slog.Level)
	if !ok {
		return a
	}
	switch level {
	case slog.LevelDebug:
		a.Value = slog.StringValue(color.HiBlackString("DBG"))
	case slog.LevelInfo:
		a.Value = slog.StringValue(color.GreenString("INF"))
	case slog.LevelWarn:
		a.Value = slog.StringValue(color.YellowString("WRN"))
	case slog.LevelError:
		a.Value = slog.StringValue(color.RedString("ERR"))
	}
	return a
}
