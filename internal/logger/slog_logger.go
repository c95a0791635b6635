package logger

import (
	"io"
	"log/slog"
	"os"
	"time"
)

// NewSlogLogger creates a standalone JSON logger writing to writer.
// A nil writer means stdout and a nil timezone means UTC.
// Mostly used by tests and bootstrap code that runs before SetGlobal.
func NewSlogLogger(writer io.Writer, level LogLevel, timezone *time.Location) Logger {
	if writer == nil {
		writer = os.Stdout
	}
	if timezone == nil {
		timezone = time.UTC
	}

	lvl := parseSlogLevel(level)
	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level:       lvl,
		ReplaceAttr: timezoneReplacer(timezone),
	})

	return &moduleLogger{
		logger:   slog.New(handler),
		level:    lvl,
		timezone: timezone,
	}
}

// NewDiscardLogger returns a logger that drops everything
func NewDiscardLogger() Logger {
	return NewSlogLogger(io.Discard, LogLevelError, time.UTC)
}
