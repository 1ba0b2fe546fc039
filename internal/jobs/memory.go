package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/insuredocs/docquery/internal/models"
)

// MemoryStore mirrors the Postgres queue semantics for dev mode and tests:
// oldest-first claiming under a single lock gives the same exactly-one-owner
// guarantee that SKIP LOCKED provides.
type MemoryStore struct {
	mu         sync.Mutex
	jobs       map[uuid.UUID]*models.ProcessingJob
	order      []uuid.UUID
	notifier   ProgressNotifier
	maxRetries int
	now        func() time.Time
}

func NewMemoryStore(notifier ProgressNotifier, maxRetries int) *MemoryStore {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &MemoryStore{
		jobs:       make(map[uuid.UUID]*models.ProcessingJob),
		notifier:   notifier,
		maxRetries: maxRetries,
		now:        time.Now,
	}
}

func (s *MemoryStore) Enqueue(ctx context.Context, docID, tenantID uuid.UUID) (*models.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Same rule the unique index enforces in Postgres: one live job per
	// document.
	for _, existing := range s.jobs {
		if existing.DocumentID == docID &&
			(existing.Status == models.JobStatusPending || existing.Status == models.JobStatusProcessing) {
			return nil, fmt.Errorf("%w: document already has an active processing job", models.ErrValidation)
		}
	}

	job := &models.ProcessingJob{
		ID:         uuid.New(),
		DocumentID: docID,
		TenantID:   tenantID,
		Status:     models.JobStatusPending,
		CreatedAt:  s.now(),
	}
	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)

	cp := *job
	return &cp, nil
}

func (s *MemoryStore) ClaimNext(ctx context.Context) (*models.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order {
		job := s.jobs[id]
		if job.Status != models.JobStatusPending {
			continue
		}
		started := s.now()
		job.Status = models.JobStatusProcessing
		job.StartedAt = &started
		job.FinishedAt = nil

		cp := *job
		return &cp, nil
	}
	return nil, nil
}

func (s *MemoryStore) ReportProgress(ctx context.Context, jobID uuid.UUID, stage string, percent int) error {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok || job.Status != models.JobStatusProcessing {
		s.mu.Unlock()
		return models.ErrJobNotFound
	}
	job.Stage = stage
	if percent > job.Progress {
		job.Progress = percent
	}
	progress := job.Progress
	s.mu.Unlock()

	s.notifier.PublishProgress(ctx, models.JobProgress{
		JobID:   jobID,
		Stage:   stage,
		Percent: progress,
		Status:  models.JobStatusProcessing,
	})
	return nil
}

func (s *MemoryStore) Complete(ctx context.Context, jobID uuid.UUID) error {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return models.ErrJobNotFound
	}
	finished := s.now()
	job.Status = models.JobStatusCompleted
	job.Stage = models.StageFinalize
	job.Progress = 100
	job.FinishedAt = &finished
	job.ErrorMessage = ""
	s.mu.Unlock()

	s.notifier.PublishProgress(ctx, models.JobProgress{
		JobID:   jobID,
		Stage:   models.StageFinalize,
		Percent: 100,
		Status:  models.JobStatusCompleted,
	})
	return nil
}

func (s *MemoryStore) Fail(ctx context.Context, jobID uuid.UUID, stage string, errMsg string) error {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return models.ErrJobNotFound
	}
	s.failLocked(job, stage, errMsg)
	progress, status := job.Progress, job.Status
	s.mu.Unlock()

	s.notifier.PublishProgress(ctx, models.JobProgress{
		JobID:   jobID,
		Stage:   stage,
		Percent: progress,
		Status:  status,
		Error:   errMsg,
	})
	return nil
}

func (s *MemoryStore) failLocked(job *models.ProcessingJob, stage, errMsg string) {
	job.RetryCount++
	job.Stage = stage
	job.ErrorMessage = errMsg
	job.StartedAt = nil
	if job.RetryCount >= s.maxRetries {
		finished := s.now()
		job.Status = models.JobStatusFailed
		job.FinishedAt = &finished
	} else {
		job.Status = models.JobStatusPending
		job.FinishedAt = nil
	}
}

func (s *MemoryStore) Get(ctx context.Context, jobID uuid.UUID) (*models.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, models.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *MemoryStore) SweepStale(ctx context.Context, staleAfter time.Duration) (int, error) {
	cutoff := s.now().Add(-staleAfter)

	s.mu.Lock()
	var swept []models.JobProgress
	for _, job := range s.jobs {
		if job.Status != models.JobStatusProcessing || job.StartedAt == nil || !job.StartedAt.Before(cutoff) {
			continue
		}
		s.failLocked(job, job.Stage, "worker timed out")
		swept = append(swept, models.JobProgress{
			JobID:   job.ID,
			Stage:   job.Stage,
			Percent: job.Progress,
			Status:  job.Status,
			Error:   "worker timed out",
		})
	}
	s.mu.Unlock()

	for _, p := range swept {
		s.notifier.PublishProgress(ctx, p)
	}
	return len(swept), nil
}
