package logger

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

// New builds the process logger. Attributes keep the repository's
// event/module/layer convention; the handler renders UTC timestamps.
func New(service string, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := tint.NewHandler(os.Stdout, &tint.Options{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.TimeValue(a.Value.Time().UTC())
			}
			return a
		},
	})
	return slog.New(handler).With("service", service)
}
