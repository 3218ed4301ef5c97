package sentryutil

import (
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"ecomverify/internal/config"
	"ecomverify/internal/logger"
)

// Init configures the global Sentry hub. An empty DSN leaves the SDK in its
// no-op mode, so capture calls are always safe.
func Init(cfg config.Config) {
	dsn := cfg.SentryDSN
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      cfg.SentryEnvironment,
		Release:          cfg.SentryRelease,
		TracesSampleRate: 0.2,
		EnableTracing:    dsn != "",
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			event.User = sentry.User{}
			return event
		},
	})
	if err != nil {
		logger.Warn("sentry init failed", zap.Error(err))
		return
	}
	if dsn == "" {
		logger.Info("SENTRY_DSN empty, error tracking disabled")
	} else {
		logger.Info("sentry initialised", zap.String("environment", cfg.SentryEnvironment))
	}
}

func Flush() { sentry.Flush(2 * time.Second) }

func CaptureError(err error, tags map[string]string) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}

func CaptureMessage(msg string, level sentry.Level, tags map[string]string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(level)
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureMessage(msg)
	})
}

// LevelWarning returns sentry.LevelWarning so callers don't need to import sentry-go directly.
func LevelWarning() sentry.Level { return sentry.LevelWarning }
