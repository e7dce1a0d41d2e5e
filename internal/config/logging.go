package config

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// NewLogger builds the process-wide zerolog root. JSON lines on stdout
// by default; the "console" format switches to the human-readable
// writer for local development. The result is also installed as the
// global logger so stray log.* calls land in the same stream.
func NewLogger(cfg LoggingConfig) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var out io.Writer = os.Stdout
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(out).Level(logLevel(cfg.Level)).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}

// logLevel maps the configured level name onto zerolog's scale, falling
// back to info for anything unrecognized or empty.
func logLevel(raw string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}
