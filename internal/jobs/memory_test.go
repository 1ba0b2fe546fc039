package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/insuredocs/docquery/internal/models"
)

func TestEnqueueAndClaim(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil, 3)

	job, err := store.Enqueue(ctx, uuid.New(), uuid.New())
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if job.Status != models.JobStatusPending {
		t.Errorf("new job status = %s, want pending", job.Status)
	}

	claimed, err := store.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil || claimed.ID != job.ID {
		t.Fatal("claim returned wrong job")
	}
	if claimed.Status != models.JobStatusProcessing {
		t.Errorf("claimed status = %s, want processing", claimed.Status)
	}

	// Queue drained.
	again, err := store.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("claim empty: %v", err)
	}
	if again != nil {
		t.Error("claim on empty queue should return nil")
	}
}

func TestEnqueueRejectsDuplicateActiveJob(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil, 3)
	docID := uuid.New()
	tenantID := uuid.New()

	job, err := store.Enqueue(ctx, docID, tenantID)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// A second enqueue while the first is pending is a caller error, not an
	// internal one.
	if _, err := store.Enqueue(ctx, docID, tenantID); !errors.Is(err, models.ErrValidation) {
		t.Errorf("duplicate enqueue error = %v, want ErrValidation", err)
	}

	// Still rejected while the job is being worked.
	store.ClaimNext(ctx)
	if _, err := store.Enqueue(ctx, docID, tenantID); !errors.Is(err, models.ErrValidation) {
		t.Errorf("enqueue during processing error = %v, want ErrValidation", err)
	}

	// Once the job is terminal, reprocessing may enqueue again.
	store.Complete(ctx, job.ID)
	if _, err := store.Enqueue(ctx, docID, tenantID); err != nil {
		t.Errorf("enqueue after completion: %v", err)
	}
}

func TestClaimOldestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil, 3)

	first, _ := store.Enqueue(ctx, uuid.New(), uuid.New())
	second, _ := store.Enqueue(ctx, uuid.New(), uuid.New())

	claimed, _ := store.ClaimNext(ctx)
	if claimed.ID != first.ID {
		t.Errorf("expected oldest job %s first, got %s", first.ID, claimed.ID)
	}
	claimed, _ = store.ClaimNext(ctx)
	if claimed.ID != second.ID {
		t.Errorf("expected job %s second, got %s", second.ID, claimed.ID)
	}
}

// N concurrent claimers against M pending jobs: every job claimed exactly
// once, no duplicates, nothing left over.
func TestConcurrentClaimersNoDuplicates(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil, 3)

	const jobCount = 50
	const claimers = 16

	for i := 0; i < jobCount; i++ {
		if _, err := store.Enqueue(ctx, uuid.New(), uuid.New()); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	var mu sync.Mutex
	owned := make(map[uuid.UUID]int)

	var wg sync.WaitGroup
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := store.ClaimNext(ctx)
				if err != nil {
					t.Errorf("claim: %v", err)
					return
				}
				if job == nil {
					return
				}
				mu.Lock()
				owned[job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(owned) != jobCount {
		t.Errorf("claimed %d distinct jobs, want %d", len(owned), jobCount)
	}
	for id, n := range owned {
		if n != 1 {
			t.Errorf("job %s claimed %d times", id, n)
		}
	}
}

func TestProgressMonotonic(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil, 3)

	job, _ := store.Enqueue(ctx, uuid.New(), uuid.New())
	store.ClaimNext(ctx)

	steps := []struct {
		stage string
		pct   int
		want  int
	}{
		{models.StageDownload, 10, 10},
		{models.StageExtract, 40, 40},
		{models.StageSegment, 25, 40}, // regression attempt must clamp
		{models.StageEmbed, 70, 70},
	}
	for _, step := range steps {
		if err := store.ReportProgress(ctx, job.ID, step.stage, step.pct); err != nil {
			t.Fatalf("report %s: %v", step.stage, err)
		}
		got, _ := store.Get(ctx, job.ID)
		if got.Progress != step.want {
			t.Errorf("after %s(%d): progress = %d, want %d", step.stage, step.pct, got.Progress, step.want)
		}
	}
}

func TestFailRetriesThenTerminal(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil, 2)

	job, _ := store.Enqueue(ctx, uuid.New(), uuid.New())

	// First failure: back to pending with the stage tag recorded.
	store.ClaimNext(ctx)
	if err := store.Fail(ctx, job.ID, models.StageExtract, "boom"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	got, _ := store.Get(ctx, job.ID)
	if got.Status != models.JobStatusPending {
		t.Errorf("after first failure status = %s, want pending", got.Status)
	}
	if got.RetryCount != 1 {
		t.Errorf("retry count = %d, want 1", got.RetryCount)
	}
	if got.Stage != models.StageExtract || got.ErrorMessage != "boom" {
		t.Errorf("stage/error not recorded: %s / %q", got.Stage, got.ErrorMessage)
	}

	// Second failure exhausts the budget.
	store.ClaimNext(ctx)
	store.Fail(ctx, job.ID, models.StageExtract, "boom again")
	got, _ = store.Get(ctx, job.ID)
	if got.Status != models.JobStatusFailed {
		t.Errorf("after final failure status = %s, want failed", got.Status)
	}

	// Terminally failed jobs are not claimable.
	claimed, _ := store.ClaimNext(ctx)
	if claimed != nil {
		t.Error("terminally failed job must not be claimable")
	}
}

func TestSweepStale(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil, 3)

	stuck, _ := store.Enqueue(ctx, uuid.New(), uuid.New())
	store.ClaimNext(ctx)

	live, _ := store.Enqueue(ctx, uuid.New(), uuid.New())

	// Backdate the stuck job's claim beyond the timeout.
	store.mu.Lock()
	old := time.Now().Add(-time.Hour)
	store.jobs[stuck.ID].StartedAt = &old
	store.mu.Unlock()

	n, err := store.SweepStale(ctx, 10*time.Minute)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("swept %d jobs, want 1", n)
	}

	got, _ := store.Get(ctx, stuck.ID)
	if got.Status != models.JobStatusPending {
		t.Errorf("swept job status = %s, want pending (retry budget remains)", got.Status)
	}
	if got.RetryCount != 1 {
		t.Errorf("swept job retry count = %d, want 1", got.RetryCount)
	}

	// The live pending job is untouched.
	gotLive, _ := store.Get(ctx, live.ID)
	if gotLive.Status != models.JobStatusPending || gotLive.RetryCount != 0 {
		t.Error("sweep touched a non-stale job")
	}
}

func TestSweepStaleExhaustsRetries(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil, 1)

	job, _ := store.Enqueue(ctx, uuid.New(), uuid.New())
	store.ClaimNext(ctx)

	store.mu.Lock()
	old := time.Now().Add(-time.Hour)
	store.jobs[job.ID].StartedAt = &old
	store.mu.Unlock()

	store.SweepStale(ctx, 10*time.Minute)

	got, _ := store.Get(ctx, job.ID)
	if got.Status != models.JobStatusFailed {
		t.Errorf("job with exhausted retries = %s, want failed", got.Status)
	}

	// And it must not be claimed afterwards.
	claimed, _ := store.ClaimNext(ctx)
	if claimed != nil {
		t.Error("failed job claimed after sweep")
	}
}

type recordingNotifier struct {
	mu      sync.Mutex
	updates []models.JobProgress
}

func (r *recordingNotifier) PublishProgress(_ context.Context, p models.JobProgress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, p)
}

func TestProgressNotifications(t *testing.T) {
	ctx := context.Background()
	rec := &recordingNotifier{}
	store := NewMemoryStore(rec, 3)

	job, _ := store.Enqueue(ctx, uuid.New(), uuid.New())
	store.ClaimNext(ctx)
	store.ReportProgress(ctx, job.ID, models.StageDownload, 10)
	store.Complete(ctx, job.ID)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.updates) != 2 {
		t.Fatalf("got %d progress updates, want 2", len(rec.updates))
	}
	last := rec.updates[len(rec.updates)-1]
	if last.Status != models.JobStatusCompleted || last.Percent != 100 {
		t.Errorf("final update = %+v, want completed/100", last)
	}
}
