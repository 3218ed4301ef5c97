package analyzer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ecomverify/internal/adapters/memory"
	"ecomverify/internal/domain"
	"ecomverify/internal/ports"
)

type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) Analyze(ctx context.Context, url string) domain.AnalysisResult {
	args := m.Called(ctx, url)
	return args.Get(0).(domain.AnalysisResult)
}

type mockCache struct {
	mock.Mock
}

func (m *mockCache) Get(ctx context.Context, url string) (domain.AnalysisResult, bool, error) {
	args := m.Called(ctx, url)
	return args.Get(0).(domain.AnalysisResult), args.Bool(1), args.Error(2)
}

func (m *mockCache) Set(ctx context.Context, res domain.AnalysisResult) error {
	return m.Called(ctx, res).Error(0)
}

func result(url string, verdict domain.Verdict) domain.AnalysisResult {
	return domain.AnalysisResult{
		URL:                    url,
		Verdict:                verdict,
		Confidence:             0.9,
		VerificationsCompleted: true,
		AnalyzedAt:             time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC),
	}
}

const shop = "https://example-store.com"

func TestAnalyze_RunsEngineThenServesFromStore(t *testing.T) {
	engine := &mockEngine{}
	engine.On("Analyze", mock.Anything, shop).Return(result(shop, domain.VerdictTrustworthy)).Once()
	svc := New(engine, memory.New(), nil, nil)
	ctx := context.Background()

	first, src, err := svc.Analyze(ctx, "  "+shop+" ", ports.AnalyzeOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceAnalysis, src)

	second, src, err := svc.Analyze(ctx, shop, ports.AnalyzeOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceStore, src)
	assert.Equal(t, first, second)

	engine.AssertExpectations(t)
}

func TestAnalyze_CacheHitSkipsEngine(t *testing.T) {
	engine := &mockEngine{}
	cache := &mockCache{}
	cache.On("Get", mock.Anything, shop).Return(result(shop, domain.VerdictFraudulent), true, nil)
	svc := New(engine, memory.New(), cache, nil)

	res, src, err := svc.Analyze(context.Background(), shop, ports.AnalyzeOptions{})
	require.NoError(t, err)

	assert.Equal(t, domain.SourceCache, src)
	assert.Equal(t, domain.VerdictFraudulent, res.Verdict)
	engine.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything)
}

func TestAnalyze_StoreHitBackfillsCache(t *testing.T) {
	store := memory.New()
	stored := result(shop, domain.VerdictTrustworthy)
	require.NoError(t, store.Put(context.Background(), stored))

	cache := &mockCache{}
	cache.On("Get", mock.Anything, shop).Return(domain.AnalysisResult{}, false, nil)
	cache.On("Set", mock.Anything, stored).Return(nil).Once()
	svc := New(&mockEngine{}, store, cache, nil)

	_, src, err := svc.Analyze(context.Background(), shop, ports.AnalyzeOptions{})
	require.NoError(t, err)

	assert.Equal(t, domain.SourceStore, src)
	cache.AssertExpectations(t)
}

func TestAnalyze_CollaboratorFailuresAreBypassed(t *testing.T) {
	engine := &mockEngine{}
	fresh := result(shop, domain.VerdictTrustworthy)
	engine.On("Analyze", mock.Anything, shop).Return(fresh)
	cache := &mockCache{}
	cache.On("Get", mock.Anything, shop).Return(domain.AnalysisResult{}, false, errors.New("redis down"))
	cache.On("Set", mock.Anything, fresh).Return(errors.New("redis down"))
	svc := New(engine, nil, cache, nil)

	res, src, err := svc.Analyze(context.Background(), shop, ports.AnalyzeOptions{})
	require.NoError(t, err)

	assert.Equal(t, domain.SourceAnalysis, src)
	assert.Equal(t, fresh, res)
}

func TestAnalyze_RefreshOverwrites(t *testing.T) {
	store := memory.New()
	require.NoError(t, store.Put(context.Background(), result(shop, domain.VerdictFraudulent)))

	engine := &mockEngine{}
	engine.On("Analyze", mock.Anything, shop).Return(result(shop, domain.VerdictTrustworthy)).Once()
	svc := New(engine, store, nil, nil)

	res, src, err := svc.Analyze(context.Background(), shop, ports.AnalyzeOptions{Refresh: true})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceAnalysis, src)
	assert.Equal(t, domain.VerdictTrustworthy, res.Verdict)

	stored, err := store.Get(context.Background(), shop)
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictTrustworthy, stored.Verdict)
}

func TestAnalyze_FallbackIsNotStored(t *testing.T) {
	store := memory.New()
	fallback := result(shop, domain.VerdictFraudulent)
	fallback.VerificationsCompleted = false

	engine := &mockEngine{}
	engine.On("Analyze", mock.Anything, shop).Return(fallback)
	svc := New(engine, store, nil, nil)

	_, _, err := svc.Analyze(context.Background(), shop, ports.AnalyzeOptions{})
	require.NoError(t, err)

	_, err = store.Get(context.Background(), shop)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

// slowEngine blocks until released and counts runs.
type slowEngine struct {
	mu      sync.Mutex
	runs    int
	release chan struct{}
}

func (e *slowEngine) Analyze(_ context.Context, url string) domain.AnalysisResult {
	e.mu.Lock()
	e.runs++
	e.mu.Unlock()
	<-e.release
	return result(url, domain.VerdictTrustworthy)
}

func TestAnalyze_ConcurrentRequestsShareOneRun(t *testing.T) {
	engine := &slowEngine{release: make(chan struct{})}
	svc := New(engine, nil, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.Analyze(context.Background(), shop, ports.AnalyzeOptions{})
			assert.NoError(t, err)
		}()
	}
	require.Eventually(t, func() bool {
		engine.mu.Lock()
		defer engine.mu.Unlock()
		return engine.runs == 1
	}, time.Second, 5*time.Millisecond)
	// Let the stragglers join the in-flight call before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(engine.release)
	wg.Wait()

	engine.mu.Lock()
	defer engine.mu.Unlock()
	assert.Equal(t, 1, engine.runs)
}

// gatedEngine answers trustworthy once released. If its context ends first it
// returns the fraudulent verdict a run over cancelled fetches would produce.
type gatedEngine struct {
	release chan struct{}
}

func (e *gatedEngine) Analyze(ctx context.Context, url string) domain.AnalysisResult {
	select {
	case <-e.release:
		return result(url, domain.VerdictTrustworthy)
	case <-ctx.Done():
		return result(url, domain.VerdictFraudulent)
	}
}

func TestAnalyze_CallerTimeoutDoesNotStoreDegradedResult(t *testing.T) {
	store := memory.New()
	engine := &gatedEngine{release: make(chan struct{})}
	svc := New(engine, store, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _, err := svc.Analyze(ctx, shop, ports.AnalyzeOptions{})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = store.Get(context.Background(), shop)
	assert.ErrorIs(t, err, ports.ErrNotFound)

	// The run carries on without the caller and stores the real verdict.
	close(engine.release)
	require.Eventually(t, func() bool {
		res, err := store.Get(context.Background(), shop)
		return err == nil && res.Verdict == domain.VerdictTrustworthy
	}, time.Second, 5*time.Millisecond)

	res, src, err := svc.Analyze(context.Background(), shop, ports.AnalyzeOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceStore, src)
	assert.Equal(t, domain.VerdictTrustworthy, res.Verdict)
}

func TestAnalyze_WaitingCallerUnaffectedByCancelledPeer(t *testing.T) {
	engine := &gatedEngine{release: make(chan struct{})}
	svc := New(engine, nil, nil, nil)

	impatient, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, _, err := svc.Analyze(impatient, shop, ports.AnalyzeOptions{})
		errCh <- err
	}()

	type outcome struct {
		res domain.AnalysisResult
		err error
	}
	patient := make(chan outcome, 1)
	go func() {
		// Give the first caller time to start the shared run.
		time.Sleep(20 * time.Millisecond)
		res, _, err := svc.Analyze(context.Background(), shop, ports.AnalyzeOptions{})
		patient <- outcome{res, err}
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(engine.release)
	got := <-patient
	require.NoError(t, got.err)
	assert.Equal(t, domain.VerdictTrustworthy, got.res.Verdict)
}

func TestAnalyze_InvalidURL(t *testing.T) {
	svc := New(&mockEngine{}, nil, nil, nil)

	for _, raw := range []string{"", "example-store.com", "ftp://example-store.com", "https://", "http://%zz"} {
		_, _, err := svc.Analyze(context.Background(), raw, ports.AnalyzeOptions{})
		assert.ErrorIs(t, err, ErrInvalidURL, raw)
	}
}

func TestEnqueueAndJob(t *testing.T) {
	store := memory.New()
	svc := New(&mockEngine{}, store, nil, store)
	ctx := context.Background()

	id, err := svc.Enqueue(ctx, shop)
	require.NoError(t, err)

	job, err := svc.Job(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, shop, job.URL)
	assert.Equal(t, domain.JobQueued, job.Status)

	_, err = svc.Enqueue(ctx, "not a url")
	assert.ErrorIs(t, err, ErrInvalidURL)

	_, err = svc.Job(ctx, "missing")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestEnqueue_NoQueue(t *testing.T) {
	svc := New(&mockEngine{}, nil, nil, nil)

	_, err := svc.Enqueue(context.Background(), shop)
	assert.ErrorIs(t, err, ErrQueueUnavailable)
}

func TestProcess_ForcesRefresh(t *testing.T) {
	store := memory.New()
	require.NoError(t, store.Put(context.Background(), result(shop, domain.VerdictFraudulent)))
	engine := &mockEngine{}
	engine.On("Analyze", mock.Anything, shop).Return(result(shop, domain.VerdictTrustworthy)).Once()
	svc := New(engine, store, nil, nil)

	require.NoError(t, svc.Process(context.Background(), shop))
	engine.AssertExpectations(t)
}
