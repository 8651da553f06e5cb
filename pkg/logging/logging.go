// Package logging builds the slog loggers used by the stepper packages.
package logging

import (
	"io"
	"log/slog"

	"github.com/phsym/console-slog"
)

// New returns a logger writing to w at the given level.
// With dev set, output is a coloured console format; otherwise JSON lines
// with the time under "ts".
func New(w io.Writer, level slog.Level, dev bool) *slog.Logger {
	var handler slog.Handler
	if dev {
		handler = console.NewHandler(w, &console.HandlerOptions{
			AddSource: level <= slog.LevelDebug,
			Level:     level,
		})
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: level,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey && len(groups) == 0 {
					a.Key = "ts"
				}
				return a
			},
		})
	}
	return slog.New(handler)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
