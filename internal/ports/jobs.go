package ports

import (
	"context"

	"ecomverify/internal/domain"
)

// JobRepository supports queuing, claiming and updating analysis jobs.
type JobRepository interface {
	CreateJob(ctx context.Context, url string) (jobID string, err error)
	GetJob(ctx context.Context, jobID string) (domain.Job, error)
	ClaimNext(ctx context.Context) (job domain.Job, found bool, err error)
	MarkCompleted(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID string, reason string) error
	// StartJob records a job that is already running, for inline processing.
	StartJob(ctx context.Context, url string) (jobID string, err error)
}
