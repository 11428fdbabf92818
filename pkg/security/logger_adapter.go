// Package security holds the logging adapter that services depend on through ports.Logger.
package security

import (
	"fmt"

	"github.com/kevin07696/transaction-orchestrator/internal/domain/ports"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Ensure ZapLoggerAdapter implements the port
var _ ports.Logger = (*ZapLoggerAdapter)(nil)

// ZapLoggerAdapter adapts zap.Logger to the Logger port
type ZapLoggerAdapter struct {
	logger *zap.Logger
}

// NewZapLogger wraps an existing zap logger
func NewZapLogger(logger *zap.Logger) *ZapLoggerAdapter {
	return &ZapLoggerAdapter{logger: logger}
}

// NewLogger builds the process logger. Development mode writes console output
// with stack traces on warnings; production writes JSON.
func NewLogger(level string, development bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build(zap.Fields(zap.String("service", "transaction-orchestrator")))
}

// Zap returns the wrapped logger
func (z *ZapLoggerAdapter) Zap() *zap.Logger {
	return z.logger
}

// With returns an adapter that adds fields to every entry
func (z *ZapLoggerAdapter) With(fields ...ports.Field) *ZapLoggerAdapter {
	return &ZapLoggerAdapter{logger: z.logger.With(convertFields(fields)...)}
}

// Info logs an info message
func (z *ZapLoggerAdapter) Info(msg string, fields ...ports.Field) {
	z.logger.Info(msg, convertFields(fields)...)
}

// Error logs an error message
func (z *ZapLoggerAdapter) Error(msg string, fields ...ports.Field) {
	z.logger.Error(msg, convertFields(fields)...)
}

// Warn logs a warning message
func (z *ZapLoggerAdapter) Warn(msg string, fields ...ports.Field) {
	z.logger.Warn(msg, convertFields(fields)...)
}

// Debug logs a debug message
func (z *ZapLoggerAdapter) Debug(msg string, fields ...ports.Field) {
	z.logger.Debug(msg, convertFields(fields)...)
}

// convertFields maps port fields to typed zap fields where the type is known
func convertFields(fields []ports.Field) []zap.Field {
	zapFields := make([]zap.Field, len(fields))
	for i, f := range fields {
		if err, ok := f.Value.(error); ok && f.Key == "error" {
			zapFields[i] = zap.Error(err)
			continue
		}
		zapFields[i] = zap.Any(f.Key, f.Value)
	}
	return zapFields
}
