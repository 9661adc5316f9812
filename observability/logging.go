// Package observability provides the dispatcher's structured logging and
// metrics, grounded on the same zap + OpenTelemetry/Prometheus stack used
// elsewhere in the retrieved corpus for exactly this kind of service.
package observability

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a production JSON logger at the given level ("debug",
// "info", "warn", "error"). An unparsable level falls back to info.
func NewLogger(level string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}

	parsedLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		parsedLevel = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(parsedLevel)
	config.Encoding = "json"
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return config.Build()
}

// NewDevelopmentLogger builds a colorized console logger for local runs.
func NewDevelopmentLogger() *zap.Logger {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logger, _ := config.Build()
	return logger
}

// FromEnv picks a development logger when GO_ENV=development, otherwise a
// production logger at info level (falling back to development if that
// somehow fails to build).
func FromEnv() *zap.Logger {
	if os.Getenv("GO_ENV") == "development" {
		return NewDevelopmentLogger()
	}
	logger, err := NewLogger("info")
	if err != nil {
		return NewDevelopmentLogger()
	}
	return logger
}
