// Package logging wraps zerolog the way the rest of the domain stack
// configures it: a single process-wide level/format choice, surfaced as a
// small typed wrapper rather than a bare *zerolog.Logger so call sites read
// like logging.New(...).Info() instead of reaching into the zerolog
// package directly.
package logging

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger is a thin handle around a configured zerolog.Logger.
type Logger struct {
	log zerolog.Logger
}

// New returns a Logger writing to stderr at the given level ("debug",
// "info", "warn", "error"; unknown values fall back to "info") in either
// "json" or "console" format.
func New(level, format string) *Logger {
	zerolog.SetGlobalLevel(parseLevel(level))

	var writer interface{ Write([]byte) (int, error) } = os.Stderr
	if format == "console" {
		writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}

	return &Logger{log: zerolog.New(writer).With().Timestamp().Logger()}
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Info starts an info-level event.
func (l *Logger) Info() *zerolog.Event { return l.log.Info() }

// Warn starts a warn-level event.
func (l *Logger) Warn() *zerolog.Event { return l.log.Warn() }

// Error starts an error-level event.
func (l *Logger) Error() *zerolog.Event { return l.log.Error() }

// Debug starts a debug-level event.
func (l *Logger) Debug() *zerolog.Event { return l.log.Debug() }

// With returns a child Logger whose lines carry a "component" field set
// to component.
func (l *Logger) With(component string) *Logger {
	return &Logger{log: l.log.With().Str("component", component).Logger()}
}
