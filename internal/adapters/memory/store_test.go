package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecomverify/internal/domain"
	"ecomverify/internal/ports"
)

var (
	_ ports.AnalysisRepository = (*Store)(nil)
	_ ports.JobRepository      = (*Store)(nil)
)

// steppingClock advances one second per call.
func steppingClock() func() time.Time {
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestStore_PutGetReplaces(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.Get(ctx, "https://shop.example")
	assert.ErrorIs(t, err, ports.ErrNotFound)

	require.NoError(t, s.Put(ctx, domain.AnalysisResult{URL: "https://shop.example", Verdict: domain.VerdictFraudulent}))
	require.NoError(t, s.Put(ctx, domain.AnalysisResult{URL: "https://shop.example", Verdict: domain.VerdictTrustworthy}))

	got, err := s.Get(ctx, "https://shop.example")
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictTrustworthy, got.Verdict)

	list, err := s.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.now = steppingClock()

	for _, u := range []string{"https://a.example", "https://b.example", "https://c.example"} {
		require.NoError(t, s.Put(ctx, domain.AnalysisResult{URL: u, Verdict: domain.VerdictTrustworthy, Confidence: 0.9}))
	}
	// Re-analysing a moves it to the front.
	require.NoError(t, s.Put(ctx, domain.AnalysisResult{URL: "https://a.example", Verdict: domain.VerdictFraudulent}))

	list, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "https://a.example", list[0].URL)
	assert.Equal(t, domain.VerdictFraudulent, list[0].Verdict)
	assert.Equal(t, "https://c.example", list[1].URL)
	assert.Equal(t, 0.9, list[1].Confidence)
}

func TestStore_JobLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	first, err := s.CreateJob(ctx, "https://a.example")
	require.NoError(t, err)
	second, err := s.CreateJob(ctx, "https://b.example")
	require.NoError(t, err)

	job, err := s.GetJob(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, domain.JobQueued, job.Status)
	assert.Nil(t, job.StartedAt)

	claimed, found, err := s.ClaimNext(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, first, claimed.ID)
	assert.Equal(t, domain.JobRunning, claimed.Status)
	assert.Equal(t, 1, claimed.Attempts)

	require.NoError(t, s.MarkCompleted(ctx, first))
	job, _ = s.GetJob(ctx, first)
	assert.Equal(t, domain.JobCompleted, job.Status)
	assert.NotNil(t, job.FinishedAt)

	claimed, found, err = s.ClaimNext(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, second, claimed.ID)
	require.NoError(t, s.MarkFailed(ctx, second, "boom"))
	job, _ = s.GetJob(ctx, second)
	assert.Equal(t, domain.JobFailed, job.Status)
	assert.Equal(t, "boom", job.Error)

	_, found, err = s.ClaimNext(ctx)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_StartJobIsNotQueued(t *testing.T) {
	ctx := context.Background()
	s := New()

	id, err := s.StartJob(ctx, "https://a.example")
	require.NoError(t, err)

	job, err := s.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobRunning, job.Status)

	_, found, err := s.ClaimNext(ctx)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_UnknownJob(t *testing.T) {
	s := New()

	_, err := s.GetJob(context.Background(), "nope")
	assert.ErrorIs(t, err, ports.ErrNotFound)
	assert.ErrorIs(t, s.MarkCompleted(context.Background(), "nope"), ports.ErrNotFound)
}
