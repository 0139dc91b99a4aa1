// Package logging builds zerolog loggers from runtime configuration.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/stagekit/stagekit/config"
)

// New creates a logger from the given log configuration. The logger is also
// installed as the zerolog global so package-level log calls share the same
// sink.
func New(cfg config.LogConfig) (zerolog.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), err
	}

	out, err := openOutput(cfg.Output)
	if err != nil {
		return zerolog.Nop(), err
	}

	var writer io.Writer = out
	switch cfg.Format {
	case "", "console":
		writer = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	case "json":
		// JSON is zerolog's native output.
	default:
		return zerolog.Nop(), fmt.Errorf("unsupported log format: %s", cfg.Format)
	}

	logger := zerolog.New(writer).Level(level).With().Timestamp().Logger()
	log.Logger = logger
	return logger, nil
}

// For returns a child logger tagged with a component name.
func For(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

func parseLevel(level config.LogLevel) (zerolog.Level, error) {
	if level == "" {
		return zerolog.InfoLevel, nil
	}
	parsed, err := zerolog.ParseLevel(level.String())
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return parsed, nil
}

func openOutput(output string) (io.Writer, error) {
	switch output {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	default:
		file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log output %s: %w", output, err)
		}
		return file, nil
	}
}
