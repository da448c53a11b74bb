package cmd

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/ksteinfeldt/wipbot/internal/config"
)

// newLogger builds the process logger. Format "auto" picks text when w
// is a terminal and JSON otherwise.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	text := false
	switch strings.ToLower(cfg.Format) {
	case "text":
		text = true
	case "json":
	default:
		if f, ok := w.(*os.File); ok {
			text = term.IsTerminal(int(f.Fd()))
		}
	}

	if text {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
