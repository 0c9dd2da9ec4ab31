// Package logger builds the zerolog loggers used across the engine. Every
// component derives its own child via log.With().Str("component", ...).
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New creates the root structured logger. The level string is one of zerolog's
// named levels (debug, info, warn, error, ...); an unknown level is an error
// rather than a silent fallback. Pretty switches the output from JSON to a
// human-readable console writer for development.
func New(level string, pretty bool) (zerolog.Logger, error) {
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("unknown log level %q: %w", level, err)
	}

	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer = os.Stdout
	if pretty {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}

	return zerolog.New(output).
		Level(parsed).
		With().
		Timestamp().
		Logger(), nil
}
