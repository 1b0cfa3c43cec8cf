// Package logging builds the zerolog logger handed to every component.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Options configures New.
type Options struct {
	// Level is a zerolog level name. Unknown or empty means info.
	Level string
	// JSON switches from human console output to JSON lines.
	JSON bool
	// Output defaults to stderr.
	Output io.Writer
}

// New creates a logger.
func New(opts Options) zerolog.Logger {
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if !opts.JSON {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}

	return zerolog.New(out).With().Timestamp().Logger().Level(level)
}
