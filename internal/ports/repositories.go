package ports

import (
	"context"
	"errors"

	"ecomverify/internal/domain"
)

// ErrNotFound is returned by repositories when no record matches.
var ErrNotFound = errors.New("not found")

// AnalysisRepository stores one analysis per normalized URL. Put replaces
// any previous record for the same URL.
type AnalysisRepository interface {
	Get(ctx context.Context, url string) (domain.AnalysisResult, error)
	Put(ctx context.Context, res domain.AnalysisResult) error
	List(ctx context.Context, limit int) ([]domain.AnalysisSummary, error)
}

// ResultCache is a TTL cache of recent results keyed by URL.
type ResultCache interface {
	Get(ctx context.Context, url string) (res domain.AnalysisResult, found bool, err error)
	Set(ctx context.Context, res domain.AnalysisResult) error
}
