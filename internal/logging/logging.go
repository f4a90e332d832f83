// Package logging installs the console logger used by the framesync binaries.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"
)

// New returns a slog logger that writes human readable lines to out through a
// zerolog console writer.
func New(out io.Writer, level slog.Level) *slog.Logger {
	output := zerolog.ConsoleWriter{Out: out, TimeFormat: time.Stamp}
	log := zerolog.New(output).With().Timestamp().Logger()
	return slog.New(zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: level}))
}

// Setup parses level, builds a console logger and makes it the slog default.
func Setup(out io.Writer, level string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger := New(out, lvl)
	slog.SetDefault(logger)
	return logger, nil
}

// ParseLevel accepts the zerolog level names. An empty string means info.
// Levels finer than debug map to debug, levels beyond error map to error.
func ParseLevel(level string) (slog.Level, error) {
	if level == "" {
		return slog.LevelInfo, nil
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	switch lvl {
	case zerolog.TraceLevel, zerolog.DebugLevel:
		return slog.LevelDebug, nil
	case zerolog.InfoLevel, zerolog.NoLevel:
		return slog.LevelInfo, nil
	case zerolog.WarnLevel:
		return slog.LevelWarn, nil
	case zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel:
		return slog.LevelError, nil
	case zerolog.Disabled:
		return slog.LevelError + 4, nil
	default:
		return 0, fmt.Errorf("unsupported log level %q", level)
	}
}
