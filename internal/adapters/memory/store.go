// Package memory holds in-process implementations of the repositories, used
// by the CLI and by the server when no DATABASE_URL is configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"ecomverify/internal/domain"
	"ecomverify/internal/ports"
)

// Store implements ports.AnalysisRepository and ports.JobRepository.
type Store struct {
	mu       sync.RWMutex
	analyses map[string]record
	jobs     map[string]*domain.Job
	queue    []string
	now      func() time.Time
}

type record struct {
	result    domain.AnalysisResult
	updatedAt time.Time
}

func New() *Store {
	return &Store{
		analyses: map[string]record{},
		jobs:     map[string]*domain.Job{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Get(_ context.Context, url string) (domain.AnalysisResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.analyses[url]
	if !ok {
		return domain.AnalysisResult{}, ports.ErrNotFound
	}
	return rec.result, nil
}

func (s *Store) Put(_ context.Context, res domain.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyses[res.URL] = record{result: res, updatedAt: s.now()}
	return nil
}

func (s *Store) List(_ context.Context, limit int) ([]domain.AnalysisSummary, error) {
	s.mu.RLock()
	recs := make([]record, 0, len(s.analyses))
	for _, rec := range s.analyses {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].updatedAt.Equal(recs[j].updatedAt) {
			return recs[i].updatedAt.After(recs[j].updatedAt)
		}
		return recs[i].result.URL < recs[j].result.URL
	})
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	out := make([]domain.AnalysisSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, domain.AnalysisSummary{
			URL:        rec.result.URL,
			Verdict:    rec.result.Verdict,
			Confidence: rec.result.Confidence,
			AnalyzedAt: rec.result.AnalyzedAt,
		})
	}
	return out, nil
}

