package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// New returns a text logger writing to stdout, or appending to the file at
// path when one is given. level is one of DEBUG, INFO, WARN or ERROR; anything
// else logs at INFO and says so.
func New(path, level string) (*slog.Logger, error) {
	var w io.Writer = os.Stdout
	if len(path) != 0 {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0666)
		if err != nil {
			return nil, err
		}
		w = f
	}
	return NewWriter(w, level), nil
}

// NewWriter is New for an arbitrary writer.
func NewWriter(w io.Writer, level string) *slog.Logger {
	lvl, err := ParseLevel(level)
	l := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
	if err != nil {
		l.Warn(err.Error())
	}
	l.Debug("logger initialized", "level", lvl.String())
	return l
}

// ParseLevel converts a config level name into a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO", "":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q, using INFO", s)
	}
}
