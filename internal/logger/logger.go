// Package logger owns the process-wide zap logger. It sits on zap's global
// (zap.L), so reads and swaps are safe from any goroutine and the logger is
// a no-op until Init runs.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "ecomverify"

// New builds a logger for environment. Production writes JSON with ISO8601
// timestamps tagged with the service name; anything else gets the colored
// console encoder. An empty level keeps the environment's default (info in
// production, debug otherwise).
func New(environment, level string) (*zap.Logger, error) {
	var config zap.Config
	if environment == "production" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.InitialFields = map[string]any{"service": serviceName}
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		config.Level = zap.NewAtomicLevelAt(lvl)
	}
	return config.Build()
}

// Init builds the logger for environment and installs it globally.
func Init(environment, level string) error {
	l, err := New(environment, level)
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(l)
	return nil
}

// Get returns the installed logger.
func Get() *zap.Logger {
	return zap.L()
}

// Set installs l and returns a func restoring the previous logger. Tests
// pair it with zaptest/observer.
func Set(l *zap.Logger) (restore func()) {
	return zap.ReplaceGlobals(l)
}

// caller skips the wrapper frame so entries point at the call site.
func caller() *zap.Logger {
	return zap.L().WithOptions(zap.AddCallerSkip(1))
}

func Info(msg string, fields ...zap.Field) {
	caller().Info(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	caller().Error(msg, fields...)
}

func Debug(msg string, fields ...zap.Field) {
	caller().Debug(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	caller().Warn(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	caller().Fatal(msg, fields...)
}

// Sync flushes buffered entries.
func Sync() error {
	return zap.L().Sync()
}
