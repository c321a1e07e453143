// Package logger wraps zerolog with the repo's standard construction
// convention: a single Config controlling level and console/JSON output.
package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config controls logger construction.
type Config struct {
	// Level is one of zerolog's level names (debug, info, warn, error,
	// fatal, panic). Unknown or empty values fall back to info.
	Level string
	// Pretty switches to zerolog's human-readable console writer, used in
	// development; production runs emit newline-delimited JSON.
	Pretty bool
}

// New builds a zerolog.Logger writing to stdout per cfg.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var output = os.Stdout
	logger := zerolog.New(output).Level(level).With().Timestamp().Logger()

	if cfg.Pretty {
		logger = logger.Output(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		})
	}

	return logger
}
