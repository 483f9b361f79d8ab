package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New returns a zerolog logger configured for stdout at info level.
func New() zerolog.Logger {
	return NewWithLevel("info")
}

// NewWithLevel returns a stdout logger at the given level. Unknown levels
// fall back to info.
func NewWithLevel(level string) zerolog.Logger {
	return NewWithWriter(os.Stdout, level)
}

// NewWithWriter is NewWithLevel for an arbitrary writer. The CLI uses it to
// keep logs on stderr while reports go to stdout.
func NewWithWriter(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger().Level(parseLevel(level))
}

// NewConsole returns a human readable logger for interactive use.
func NewConsole(w io.Writer, level string) zerolog.Logger {
	return NewWithWriter(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}, level)
}

func parseLevel(value string) zerolog.Level {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "warning" {
		return zerolog.WarnLevel
	}
	level, err := zerolog.ParseLevel(value)
	if err != nil || level < zerolog.TraceLevel || level > zerolog.PanicLevel {
		return zerolog.InfoLevel
	}
	return level
}
