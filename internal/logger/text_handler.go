package logger

import (
	"io"
	"log/slog"
	"time"
)

// newTextHandler creates the human-readable console handler.
// Timestamps are omitted; journald or the container runtime adds them.
func newTextHandler(w io.Writer, level slog.Level, tz *time.Location) slog.Handler {
	replace := timezoneReplacer(tz)
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return replace(groups, a)
		},
	})
}
