package analyzer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"ecomverify/internal/domain"
	"ecomverify/internal/logger"
	"ecomverify/internal/metrics"
	"ecomverify/internal/ports"
)

var (
	ErrInvalidURL       = errors.New("invalid url")
	ErrQueueUnavailable = errors.New("job queue unavailable")
)

// Service serves analyses from the cache, then the store, then a fresh
// engine run. Store and cache are optional; their failures are logged and
// bypassed.
type Service struct {
	engine ports.Engine
	store  ports.AnalysisRepository
	cache  ports.ResultCache
	jobs   ports.JobRepository

	group singleflight.Group
}

func New(engine ports.Engine, store ports.AnalysisRepository, cache ports.ResultCache, jobs ports.JobRepository) *Service {
	return &Service{engine: engine, store: store, cache: cache, jobs: jobs}
}

// Validate trims rawurl and checks it is an absolute http(s) URL. The URL is
// otherwise kept as given since the lexical features read the exact string.
func Validate(rawurl string) (string, error) {
	target := strings.TrimSpace(rawurl)
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Hostname() == "" {
		return "", fmt.Errorf("%w: %q is not an absolute http(s) url", ErrInvalidURL, target)
	}
	return target, nil
}

func (s *Service) Analyze(ctx context.Context, rawurl string, opts ports.AnalyzeOptions) (domain.AnalysisResult, domain.Source, error) {
	target, err := Validate(rawurl)
	if err != nil {
		return domain.AnalysisResult{}, "", err
	}

	if !opts.Refresh {
		if res, src, ok := s.lookup(ctx, target); ok {
			metrics.AnalysesTotal.WithLabelValues(string(res.Verdict), string(src)).Inc()
			return res, src, nil
		}
	}

	// Concurrent requests for one URL share a single engine run. Refreshes
	// get their own key so they never reuse a lookup-path run.
	key := target
	if opts.Refresh {
		key = "refresh\x00" + target
	}
	// The shared run is detached from the caller: a caller that gives up must
	// not cut the probes short for the others, nor leave a result built from
	// cancelled fetches in the store. The engine's probe budget bounds it.
	runCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		res := s.engine.Analyze(runCtx, target)
		s.persist(runCtx, res)
		return res, nil
	})
	select {
	case r := <-ch:
		res := r.Val.(domain.AnalysisResult)
		metrics.AnalysesTotal.WithLabelValues(string(res.Verdict), string(domain.SourceAnalysis)).Inc()
		return res, domain.SourceAnalysis, nil
	case <-ctx.Done():
		return domain.AnalysisResult{}, "", fmt.Errorf("analyze %s: %w", target, ctx.Err())
	}
}

// Process runs a forced re-analysis; it is the job worker's entry point.
func (s *Service) Process(ctx context.Context, rawurl string) error {
	_, _, err := s.Analyze(ctx, rawurl, ports.AnalyzeOptions{Refresh: true})
	return err
}

func (s *Service) Enqueue(ctx context.Context, rawurl string) (string, error) {
	target, err := Validate(rawurl)
	if err != nil {
		return "", err
	}
	if s.jobs == nil {
		return "", ErrQueueUnavailable
	}
	jobID, err := s.jobs.CreateJob(ctx, target)
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", target, err)
	}
	return jobID, nil
}

func (s *Service) Job(ctx context.Context, jobID string) (domain.Job, error) {
	if s.jobs == nil {
		return domain.Job{}, ErrQueueUnavailable
	}
	return s.jobs.GetJob(ctx, jobID)
}

func (s *Service) lookup(ctx context.Context, target string) (domain.AnalysisResult, domain.Source, bool) {
	if s.cache != nil {
		res, found, err := s.cache.Get(ctx, target)
		switch {
		case err != nil:
			metrics.CacheLookups.WithLabelValues("cache", "error").Inc()
			logger.Warn("cache lookup failed", zap.String("url", target), zap.Error(err))
		case found:
			metrics.CacheLookups.WithLabelValues("cache", "hit").Inc()
			return res, domain.SourceCache, true
		default:
			metrics.CacheLookups.WithLabelValues("cache", "miss").Inc()
		}
	}

	if s.store != nil {
		res, err := s.store.Get(ctx, target)
		switch {
		case errors.Is(err, ports.ErrNotFound):
			metrics.CacheLookups.WithLabelValues("store", "miss").Inc()
		case err != nil:
			metrics.CacheLookups.WithLabelValues("store", "error").Inc()
			logger.Warn("store lookup failed", zap.String("url", target), zap.Error(err))
		default:
			metrics.CacheLookups.WithLabelValues("store", "hit").Inc()
			s.cacheResult(ctx, res)
			return res, domain.SourceStore, true
		}
	}
	return domain.AnalysisResult{}, "", false
}

// persist stores and caches res. Fallback results are not kept, so a
// transient failure is not served again.
func (s *Service) persist(ctx context.Context, res domain.AnalysisResult) {
	if !res.VerificationsCompleted {
		return
	}
	if s.store != nil {
		if err := s.store.Put(ctx, res); err != nil {
			logger.Error("store analysis failed", zap.String("url", res.URL), zap.Error(err))
		}
	}
	s.cacheResult(ctx, res)
}

func (s *Service) cacheResult(ctx context.Context, res domain.AnalysisResult) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, res); err != nil {
		logger.Warn("cache write failed", zap.String("url", res.URL), zap.Error(err))
	}
}
