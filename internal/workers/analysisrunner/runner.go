package analysisrunner

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"ecomverify/internal/domain"
	"ecomverify/internal/logger"
	"ecomverify/internal/ports"
	sentryutil "ecomverify/internal/sentry"
)

const shutdownReason = "shutdown during processing"

// Processor performs the analysis for a job's URL.
type Processor interface {
	Process(ctx context.Context, url string) error
}

// Run starts worker goroutines that claim jobs and process them. It returns
// once ctx is cancelled and every worker has finished its current job.
func Run(ctx context.Context, repo ports.JobRepository, processor Processor, concurrency int, pollInterval time.Duration) {
	if concurrency < 1 {
		return
	}
	jobsCh := make(chan domain.Job, concurrency)

	// dispatcher loop
	go func() {
		defer close(jobsCh)
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for {
					job, found, err := repo.ClaimNext(ctx)
					if err != nil {
						if ctx.Err() == nil {
							logger.Error("job claim failed", zap.Error(err))
						}
						break
					}
					if !found {
						break
					}
					select {
					case jobsCh <- job:
					case <-ctx.Done():
						// Claimed but never started; record it rather than leave it running.
						_ = repo.MarkFailed(context.WithoutCancel(ctx), job.ID, "shutdown before processing")
						return
					}
				}
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			for job := range jobsCh {
				process(ctx, repo, processor, job, idx)
			}
		}(i)
	}
	wg.Wait()
}

func process(ctx context.Context, repo ports.JobRepository, processor Processor, job domain.Job, worker int) {
	log := logger.Get().With(zap.Int("worker", worker), zap.String("job_id", job.ID), zap.String("url", job.URL))
	err := processor.Process(ctx, job.URL)
	if ctx.Err() != nil {
		// Whatever the processor returned was cut short; never record it as done.
		if markErr := repo.MarkFailed(context.WithoutCancel(ctx), job.ID, shutdownReason); markErr != nil {
			log.Error("mark failed error", zap.Error(markErr))
		}
		log.Warn("job interrupted by shutdown")
		return
	}
	if err != nil {
		if markErr := repo.MarkFailed(context.WithoutCancel(ctx), job.ID, err.Error()); markErr != nil {
			log.Error("mark failed error", zap.Error(markErr))
		}
		log.Warn("job failed", zap.Error(err))
		sentryutil.CaptureError(err, map[string]string{"component": "analysis_worker", "job_id": job.ID})
		return
	}
	if err := repo.MarkCompleted(context.WithoutCancel(ctx), job.ID); err != nil {
		log.Error("mark completed error", zap.Error(err))
		return
	}
	log.Debug("job completed")
}

// ProcessInline records and runs one analysis synchronously with the same
// bookkeeping as the background workers.
func ProcessInline(ctx context.Context, repo ports.JobRepository, processor Processor, url string) (string, error) {
	jobID, err := repo.StartJob(ctx, url)
	if err != nil {
		return "", err
	}
	if err := processor.Process(ctx, url); err != nil {
		_ = repo.MarkFailed(context.WithoutCancel(ctx), jobID, err.Error())
		return jobID, err
	}
	return jobID, repo.MarkCompleted(ctx, jobID)
}
