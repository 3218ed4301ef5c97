package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"ecomverify/internal/domain"
	"ecomverify/internal/logger"
	"ecomverify/internal/metrics"
)

const (
	keyPrefix   = "ecomverify:analysis:"
	breakerName = "redis-cache"
)

// Cache implements ports.ResultCache. Calls go through a circuit breaker so
// an unavailable Redis costs one fast error instead of a timeout per request.
type Cache struct {
	client  *redis.Client
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("unable to connect to redis: %w", err)
	}
	return client, nil
}

func New(client *redis.Client, ttl time.Duration) *Cache {
	settings := gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(breakerStateValue(to))
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	metrics.BreakerState.WithLabelValues(breakerName).Set(0)
	return &Cache{client: client, ttl: ttl, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func key(url string) string { return keyPrefix + url }

func (c *Cache) Get(ctx context.Context, url string) (domain.AnalysisResult, bool, error) {
	v, err := c.breaker.Execute(func() (any, error) {
		raw, err := c.client.Get(ctx, key(url)).Bytes()
		if errors.Is(err, redis.Nil) {
			// A miss is not a failure.
			return []byte(nil), nil
		}
		return raw, err
	})
	if err != nil {
		return domain.AnalysisResult{}, false, fmt.Errorf("cache get: %w", err)
	}
	raw, _ := v.([]byte)
	if raw == nil {
		return domain.AnalysisResult{}, false, nil
	}
	var res domain.AnalysisResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return domain.AnalysisResult{}, false, fmt.Errorf("decode cached analysis: %w", err)
	}
	return res, true, nil
}

func (c *Cache) Set(ctx context.Context, res domain.AnalysisResult) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}
	_, err = c.breaker.Execute(func() (any, error) {
		return nil, c.client.Set(ctx, key(res.URL), raw, c.ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) State() gobreaker.State { return c.breaker.State() }

func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 0.5
	case gobreaker.StateOpen:
		return 1
	default:
		return -1
	}
}
