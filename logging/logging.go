// Package logging builds the process-wide zerolog.Logger, grounded in the
// teacher gateway's logger/logger.go: a console writer in development, level
// selected from the environment.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/archimedes-run/archimedes/config"
	"github.com/rs/zerolog"
)

// New builds a logger tagged with the service name, using a human-readable
// console writer outside production and structured JSON in production.
func New(cfg *config.Config) zerolog.Logger {
	var writer io.Writer = os.Stdout
	if cfg.Env != "production" {
		writer = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	level := zerolog.InfoLevel
	if cfg.Env == "development" {
		level = zerolog.DebugLevel
	}

	return zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Logger()
}
