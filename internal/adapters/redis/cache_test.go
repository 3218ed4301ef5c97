package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecomverify/internal/domain"
	"ecomverify/internal/ports"
)

var _ ports.ResultCache = (*Cache)(nil)

const ttl = 24 * time.Hour

func sample() domain.AnalysisResult {
	return domain.AnalysisResult{
		URL:        "https://example-store.com",
		Verdict:    domain.VerdictTrustworthy,
		Confidence: 0.9,
		RiskScore:  0.1,
		RiskLevel:  domain.RiskVeryLow,
		Reasons:    []string{"no regulatory entity mentioned"},
		AnalyzedAt: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestCache_SetThenGet(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := New(client, ttl)
	ctx := context.Background()
	res := sample()
	raw, err := json.Marshal(res)
	require.NoError(t, err)

	mock.ExpectSet("ecomverify:analysis:https://example-store.com", raw, ttl).SetVal("OK")
	mock.ExpectGet("ecomverify:analysis:https://example-store.com").SetVal(string(raw))

	require.NoError(t, cache.Set(ctx, res))
	got, found, err := cache.Get(ctx, res.URL)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, res, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCache_Miss(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := New(client, ttl)

	mock.ExpectGet("ecomverify:analysis:https://unknown.example").RedisNil()

	_, found, err := cache.Get(context.Background(), "https://unknown.example")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, gobreaker.StateClosed, cache.State())
}

func TestCache_CorruptEntry(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := New(client, ttl)

	mock.ExpectGet("ecomverify:analysis:https://x.example").SetVal("{not json")

	_, found, err := cache.Get(context.Background(), "https://x.example")
	assert.Error(t, err)
	assert.False(t, found)
}

func TestCache_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := New(client, ttl)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		mock.ExpectGet("ecomverify:analysis:https://x.example").SetErr(errors.New("connection refused"))
	}
	for i := 0; i < 5; i++ {
		_, _, err := cache.Get(ctx, "https://x.example")
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, cache.State())

	// Rejected by the breaker without touching Redis.
	_, _, err := cache.Get(ctx, "https://x.example")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.NoError(t, mock.ExpectationsWereMet())
}
