package logging

import (
	"os"

	"github.com/rs/zerolog"

	"certmint/internal/config"
)

// NewLogger creates a structured zerolog.Logger carrying the service
// context fields from the config.
func NewLogger(cfg *config.AppConfig) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "certmint").
		Logger()

	level, err := zerolog.ParseLevel(cfg.Service.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	return logger.Level(level)
}
