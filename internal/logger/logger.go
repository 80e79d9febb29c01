package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global logger. Pretty output goes to stderr through
// a console writer; otherwise logs are JSON.
func Setup(level string, pretty bool) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}

	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}
	return nil
}

// Get returns the global zerolog logger
func Get() zerolog.Logger {
	return log.Logger
}

// With returns a logger with additional fields, given as alternating keys
// and values.
func With(fields ...any) zerolog.Logger {
	return log.Logger.With().Fields(fields).Logger()
}
