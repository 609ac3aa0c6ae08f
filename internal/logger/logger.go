package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog with the component tag used across the service
type Logger struct {
	zerolog.Logger
}

// New creates a root logger. pretty switches to the console writer for local runs.
func New(level string, pretty bool) *Logger {
	var writer io.Writer = os.Stderr
	if pretty {
		writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	}
	return &Logger{
		Logger: zerolog.New(writer).Level(parseLevel(level)).With().Timestamp().Logger(),
	}
}

// Nop discards everything, used by tests
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}

// With returns a child logger tagged with the component name
func (l *Logger) With(component string) *Logger {
	return &Logger{Logger: l.Logger.With().Str("component", component).Logger()}
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
