package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ErrNoDatabase is returned by Load when DATABASE_URL is unset. It is not
// fatal: the CLI falls back to the in-memory store.
var ErrNoDatabase = errors.New("DATABASE_URL not set")

type Config struct {
	Env        string
	LogLevel   string
	ListenAddr string

	DatabaseURL   string
	AutoMigrate   bool
	RedisURL      string
	CacheTTL      time.Duration
	CacheDisabled bool

	AnalysisWorkers int
	PollInterval    time.Duration
	// ProbeBudget and UserAgent override the rules file when set.
	ProbeBudget     time.Duration
	RulesFile       string
	UserAgent       string

	RateLimitRPS   float64
	RateLimitBurst int

	SentryDSN         string
	SentryEnvironment string
	SentryRelease     string
}

// Load reads .env when present and then the process environment.
func Load() (Config, error) {
	// Missing .env is the normal case in containers.
	_ = godotenv.Load()

	cfg := Config{
		Env:        getenv("APP_ENV", "development"),
		LogLevel:   os.Getenv("LOG_LEVEL"),
		ListenAddr: getenv("LISTEN_ADDR", ":8080"),

		DatabaseURL:   os.Getenv("DATABASE_URL"),
		AutoMigrate:   getenvBool("AUTO_MIGRATE", true),
		RedisURL:      os.Getenv("REDIS_URL"),
		CacheTTL:      getenvDuration("CACHE_TTL", 24*time.Hour),
		CacheDisabled: getenvBool("CACHE_DISABLED", false),

		AnalysisWorkers: getenvInt("ANALYSIS_WORKERS", 0),
		PollInterval:    getenvDuration("WORKER_POLL_INTERVAL", 500*time.Millisecond),
		ProbeBudget:     getenvDuration("PROBE_BUDGET", 0),
		RulesFile:       os.Getenv("RULES_FILE"),
		UserAgent:       os.Getenv("USER_AGENT"),

		RateLimitRPS:   getenvFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getenvInt("RATE_LIMIT_BURST", 10),

		SentryDSN:         os.Getenv("SENTRY_DSN"),
		SentryEnvironment: getenv("SENTRY_ENVIRONMENT", "development"),
		SentryRelease:     getenv("SENTRY_RELEASE", "ecomverify@dev"),
	}
	if cfg.DatabaseURL == "" {
		return cfg, ErrNoDatabase
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
