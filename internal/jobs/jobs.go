// Package jobs is the durable processing queue. Workers take ownership of
// jobs through a claim-with-skip read: the oldest pending row is locked and
// transitioned to processing in one step, and rows locked by a concurrent
// claimer are skipped rather than waited on.
package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/insuredocs/docquery/internal/models"
)

type Store interface {
	// Enqueue inserts a pending job and returns immediately; processing
	// happens off the caller's path. At most one pending or processing job
	// may exist per document; a second enqueue returns ErrValidation.
	Enqueue(ctx context.Context, docID, tenantID uuid.UUID) (*models.ProcessingJob, error)

	// ClaimNext atomically claims the oldest pending job, or returns nil
	// when nothing is claimable.
	ClaimNext(ctx context.Context) (*models.ProcessingJob, error)

	// ReportProgress records the current stage and percent. Percent is
	// clamped so reported progress never decreases.
	ReportProgress(ctx context.Context, jobID uuid.UUID, stage string, percent int) error

	Complete(ctx context.Context, jobID uuid.UUID) error

	// Fail records a stage-tagged error. The job goes back to pending until
	// its retry budget runs out, then lands terminally failed.
	Fail(ctx context.Context, jobID uuid.UUID, stage string, errMsg string) error

	Get(ctx context.Context, jobID uuid.UUID) (*models.ProcessingJob, error)

	// SweepStale recovers jobs whose owning worker died: anything processing
	// longer than staleAfter is failed, which re-pends it or exhausts its
	// retries. Returns the number of jobs swept.
	SweepStale(ctx context.Context, staleAfter time.Duration) (int, error)
}

// ProgressNotifier fans progress updates out to subscribers. Notification is
// best-effort; queue state is authoritative.
type ProgressNotifier interface {
	PublishProgress(ctx context.Context, p models.JobProgress)
}

// NopNotifier drops progress updates; used when no fanout is wired.
type NopNotifier struct{}

func (NopNotifier) PublishProgress(context.Context, models.JobProgress) {}
