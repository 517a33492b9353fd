// Package logger builds the process slog.Logger and carries per-request log
// attributes through context.Context.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// ErrParseLevel is returned by ParseLevel for an empty or unknown level.
const ErrParseLevel Error = "level must be one of: debug, info, warn, error"

// Error is a logger package error.
type Error string

func (e Error) Error() string { return string(e) }

// Output formats accepted by New.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ParseLevel parses a case-insensitive level name. Unknown names yield
// slog.LevelInfo together with ErrParseLevel.
func ParseLevel(lvl string) (slog.Level, error) {
	if lvl == "" {
		return slog.LevelInfo, ErrParseLevel
	}

	levels := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}

	level, ok := levels[strings.ToLower(lvl)]
	if !ok {
		return slog.LevelInfo, fmt.Errorf("%s %w", lvl, ErrParseLevel)
	}

	return level, nil
}

// New returns a logger writing to w (os.Stderr when nil). format selects
// between the JSON handler and the tint console handler.
func New(level slog.Level, format string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case FormatJSON:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: ReplaceAttr,
		})
	default:
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
			NoColor:    !isTerminal(w),
		})
	}

	return slog.New(NewContextHandler(handler))
}

// ReplaceAttr renders error values as their message.
func ReplaceAttr(_ []string, attr slog.Attr) slog.Attr {
	if attr.Value.Kind() == slog.KindAny {
		if err, ok := attr.Value.Any().(error); ok {
			attr.Value = slog.StringValue(err.Error())
		}
	}

	return attr
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	info, err := f.Stat()
	if err != nil {
		return false
	}

	return info.Mode()&os.ModeCharDevice != 0
}
