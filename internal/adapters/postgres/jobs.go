package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"ecomverify/internal/domain"
	"ecomverify/internal/ports"
)

const jobColumns = `id::text, url, status, attempts, error, queued_at, started_at, finished_at`

func scanJob(row pgx.Row) (domain.Job, error) {
	var (
		job    domain.Job
		status string
	)
	err := row.Scan(&job.ID, &job.URL, &status, &job.Attempts, &job.Error, &job.QueuedAt, &job.StartedAt, &job.FinishedAt)
	job.Status = domain.JobStatus(status)
	return job, err
}

func (db *DB) CreateJob(ctx context.Context, url string) (string, error) {
	var jobID string
	err := db.Pool.QueryRow(ctx, `INSERT INTO analysis_jobs (url) VALUES ($1) RETURNING id::text`, url).Scan(&jobID)
	if err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	return jobID, nil
}

func (db *DB) GetJob(ctx context.Context, jobID string) (domain.Job, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return domain.Job{}, ports.ErrNotFound
	}
	job, err := scanJob(db.Pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM analysis_jobs WHERE id = $1`, jobID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Job{}, ports.ErrNotFound
	}
	return job, err
}

// ClaimNext selects the next queued job using SKIP LOCKED and marks it running.
func (db *DB) ClaimNext(ctx context.Context) (job domain.Job, found bool, err error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return job, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			_ = tx.Commit(ctx)
		}
	}()

	var id string
	err = tx.QueryRow(ctx, `
		SELECT id::text FROM analysis_jobs
		WHERE status = 'queued'
		ORDER BY queued_at
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return job, false, nil
	}
	if err != nil {
		return job, false, err
	}

	job, err = scanJob(tx.QueryRow(ctx, `
		UPDATE analysis_jobs SET status = 'running', started_at = now(), attempts = attempts + 1
		WHERE id = $1
		RETURNING `+jobColumns, id))
	if err != nil {
		return job, false, err
	}
	return job, true, nil
}

// StartJob inserts a job that is already running, for inline processing.
func (db *DB) StartJob(ctx context.Context, url string) (string, error) {
	var jobID string
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO analysis_jobs (url, status, attempts, started_at)
		VALUES ($1, 'running', 1, now())
		RETURNING id::text
	`, url).Scan(&jobID)
	if err != nil {
		return "", fmt.Errorf("start job: %w", err)
	}
	return jobID, nil
}

func (db *DB) MarkCompleted(ctx context.Context, jobID string) error {
	return db.finish(ctx, jobID, domain.JobCompleted, "")
}

func (db *DB) MarkFailed(ctx context.Context, jobID string, reason string) error {
	return db.finish(ctx, jobID, domain.JobFailed, reason)
}

func (db *DB) finish(ctx context.Context, jobID string, status domain.JobStatus, reason string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	tag, err := db.Pool.Exec(ctx, `
		UPDATE analysis_jobs SET status = $2, error = $3, finished_at = now() WHERE id = $1
	`, jobID, string(status), reason)
	if err != nil {
		return fmt.Errorf("mark job %s %s: %w", jobID, status, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", jobID, ports.ErrNotFound)
	}
	return nil
}
