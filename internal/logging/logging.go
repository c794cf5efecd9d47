// Package logging configures the process-wide zerolog logger. Components
// derive sub-loggers with .With().Str("component", ...).
package logging

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New returns a logger at the given level writing to stderr. Format
// "console" uses the human-readable writer; anything else emits JSON.
func New(level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if format == "console" {
		writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
		logger = zerolog.New(writer)
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(lvl).With().Timestamp().Logger()
}
