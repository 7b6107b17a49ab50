package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New creates a console logger writing to stderr so it doesn't interfere
// with progress bars and user-facing output on stdout.
// Level is debug when verbose is set, info otherwise; LOG_LEVEL overrides both.
func New(verbose bool) zerolog.Logger {
	return NewWithWriter(zerolog.ConsoleWriter{Out: os.Stderr}, verbose)
}

// NewWithWriter creates a logger writing to the given writer.
func NewWithWriter(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	if s := os.Getenv("LOG_LEVEL"); s != "" {
		if parsed, err := zerolog.ParseLevel(s); err == nil {
			level = parsed
		}
	}
	return zerolog.New(w).With().Timestamp().Logger().Level(level)
}
