// Package logger configures the process-wide zerolog logger used by every
// component of the core (controller, executor, loader, routines, queue).
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config controls how the root logger is built.
type Config struct {
	// Level is a zerolog level name: "debug", "info", "warn", "error".
	// Defaults to "info" when empty or unrecognized.
	Level string
	// Pretty enables zerolog.ConsoleWriter output instead of raw JSON lines.
	// Intended for local development; production deployments should leave
	// this false so logs stay structured.
	Pretty bool
}

// New builds a root zerolog.Logger with a Unix-seconds timestamp and the
// requested level. Every component narrows it further with
// `.With().Str("component", name).Logger()`.
func New(cfg Config) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var writer = os.Stderr
	logger := zerolog.New(writer).Level(level).With().Timestamp().Logger()

	if cfg.Pretty {
		console := zerolog.ConsoleWriter{Out: writer, TimeFormat: time.RFC3339}
		logger = zerolog.New(console).Level(level).With().Timestamp().Logger()
	}

	return logger
}
