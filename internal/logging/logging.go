package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Init configures the process-wide zerolog base logger and returns it.
// Output is human-readable console lines on stderr; LOG_FORMAT=json
// switches to plain JSON for piping into collectors.
func Init(level string) zerolog.Logger {
	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	if os.Getenv("LOG_FORMAT") == "json" {
		out = os.Stderr
	}

	logger := zerolog.New(out).With().Timestamp().Logger().Level(ParseLevel(level))
	zerolog.DefaultContextLogger = &logger
	return logger
}

// ParseLevel maps the config level string to a zerolog level.
// Unknown values fall back to warn so a typo never silences errors.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "dev", "development", "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error", "production", "prod":
		return zerolog.ErrorLevel
	default:
		return zerolog.WarnLevel
	}
}
