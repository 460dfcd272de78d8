package infra

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger constructs the service logger. The level defaults by environment
// (debug in development, info elsewhere) and LOG_LEVEL overrides it, so a
// noisy dispatcher can be quieted without a redeploy. Every line carries the
// service name because worker and api ship logs to the same sink.
func NewLogger(appEnv, logLevel string) zerolog.Logger {
	level := zerolog.InfoLevel
	if appEnv == "development" {
		level = zerolog.DebugLevel
	}
	if logLevel != "" {
		if parsed, err := zerolog.ParseLevel(logLevel); err == nil {
			level = parsed
		}
	}

	logger := zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("service", "inkforge").
		Logger()

	if appEnv == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	return logger
}

// Logger aliases zerolog.Logger so callers outside infra depend on the
// logging contract without importing the third-party module directly.
type Logger = zerolog.Logger
