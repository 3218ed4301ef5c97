package reports

import (
	"context"
	"errors"
	"strings"

	"ecomverify/internal/domain"
	"ecomverify/internal/ports"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

var ErrStoreUnavailable = errors.New("analysis store unavailable")

type Service struct {
	store ports.AnalysisRepository
}

func New(store ports.AnalysisRepository) *Service { return &Service{store: store} }

// List returns stored analyses, newest first. Out-of-range limits are
// clamped to [1, MaxLimit], zero meaning DefaultLimit.
func (s *Service) List(ctx context.Context, limit int) ([]domain.AnalysisSummary, error) {
	if s.store == nil {
		return nil, ErrStoreUnavailable
	}
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	return s.store.List(ctx, limit)
}

// Lookup returns the stored analysis for url or ports.ErrNotFound.
func (s *Service) Lookup(ctx context.Context, url string) (domain.AnalysisResult, error) {
	if s.store == nil {
		return domain.AnalysisResult{}, ErrStoreUnavailable
	}
	return s.store.Get(ctx, strings.TrimSpace(url))
}
