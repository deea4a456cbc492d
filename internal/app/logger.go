// Package app holds the process-level runtime pieces: logger
// construction, database migrations and the background waitlist
// sweeper.
package app

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const envProduction = "production"

// NewLogger builds the service logger: JSON to stdout in production,
// colored console output everywhere else.
func NewLogger(env string) *zap.Logger {
	var config zap.Config

	if env == envProduction {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	config.OutputPaths = []string{"stdout"}

	logger, err := config.Build()
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}

	return logger.Named("bookingd")
}
