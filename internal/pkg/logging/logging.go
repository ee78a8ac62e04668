// Package logging sets up the engine's structured logger. Every component
// that used to emit a bracket-tagged log.Printf line in the teacher repo now
// logs the same information as structured zerolog fields instead.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New builds the root logger. Interactive runs get a colorized console
// writer (so a terminal still reads like the teacher's bracket-tag output);
// non-interactive runs emit plain JSON lines suitable for a log aggregator.
func New(nonInteractive bool) zerolog.Logger {
	var w io.Writer = os.Stderr
	if !nonInteractive {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

// Component returns a child logger tagged with the originating component,
// mirroring the teacher's "[Telegram]", "[!]" style bracket prefixes as a
// structured field instead of a string prefix.
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
