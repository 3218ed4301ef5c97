package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"ecomverify/internal/domain"
	"ecomverify/internal/ports"
)

func (s *Store) CreateJob(_ context.Context, url string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := &domain.Job{ID: uuid.NewString(), URL: url, Status: domain.JobQueued, QueuedAt: s.now()}
	s.jobs[job.ID] = job
	s.queue = append(s.queue, job.ID)
	return job.ID, nil
}

func (s *Store) GetJob(_ context.Context, jobID string) (domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return domain.Job{}, ports.ErrNotFound
	}
	return *job, nil
}

// ClaimNext pops the oldest queued job and marks it running.
func (s *Store) ClaimNext(_ context.Context) (domain.Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) > 0 {
		id := s.queue[0]
		s.queue = s.queue[1:]
		job, ok := s.jobs[id]
		if !ok || job.Status != domain.JobQueued {
			continue
		}
		s.start(job)
		return *job, true, nil
	}
	return domain.Job{}, false, nil
}

func (s *Store) StartJob(_ context.Context, url string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := &domain.Job{ID: uuid.NewString(), URL: url, QueuedAt: s.now()}
	s.start(job)
	s.jobs[job.ID] = job
	return job.ID, nil
}

func (s *Store) MarkCompleted(_ context.Context, jobID string) error {
	return s.finish(jobID, domain.JobCompleted, "")
}

func (s *Store) MarkFailed(_ context.Context, jobID string, reason string) error {
	return s.finish(jobID, domain.JobFailed, reason)
}

// start must be called with mu held.
func (s *Store) start(job *domain.Job) {
	now := s.now()
	job.Status = domain.JobRunning
	job.StartedAt = &now
	job.Attempts++
}

func (s *Store) finish(jobID string, status domain.JobStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, ports.ErrNotFound)
	}
	now := s.now()
	job.Status = status
	job.Error = reason
	job.FinishedAt = &now
	return nil
}
