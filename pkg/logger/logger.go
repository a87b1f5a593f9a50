// Package logger configures the process-wide zerolog logger: level,
// timestamp format, caller annotation, and optional pretty console output.
package logger

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config tunes the logger.
type Config struct {
	Level  string // "debug", "info", "warn", "error" (default "info")
	Pretty bool   // Human-readable console output instead of JSON
}

// New creates a configured logger and sets the global zerolog level.
func New(cfg Config) zerolog.Logger {
	zerolog.TimeFieldFormat = "2006-01-02T15:04:05Z07:00"

	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)

	var out zerolog.Logger
	if cfg.Pretty {
		writer := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
		out = zerolog.New(writer)
	} else {
		out = zerolog.New(os.Stdout)
	}

	return out.With().Timestamp().Caller().Logger()
}

// SetGlobalLogger replaces zerolog's package-level logger.
func SetGlobalLogger(l zerolog.Logger) {
	log.Logger = l
}
