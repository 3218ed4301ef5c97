package ports

import (
	"context"

	"ecomverify/internal/domain"
)

// Engine produces a verdict for one URL. It never fails; degraded inputs
// surface in the result itself.
type Engine interface {
	Analyze(ctx context.Context, url string) domain.AnalysisResult
}

type AnalyzeOptions struct {
	// Refresh skips the cache and the stored record and overwrites both.
	Refresh bool
}

// Analyzer serves analyses from cache, store or a fresh engine run, and
// queues background ones.
type Analyzer interface {
	Analyze(ctx context.Context, url string, opts AnalyzeOptions) (domain.AnalysisResult, domain.Source, error)
	Enqueue(ctx context.Context, url string) (jobID string, err error)
	Job(ctx context.Context, jobID string) (domain.Job, error)
}

// Reports reads stored analyses.
type Reports interface {
	List(ctx context.Context, limit int) ([]domain.AnalysisSummary, error)
	Lookup(ctx context.Context, url string) (domain.AnalysisResult, error)
}

// Pinger is implemented by collaborators whose health /status reports.
type Pinger interface {
	Ping(ctx context.Context) error
}
