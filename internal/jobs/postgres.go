package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/insuredocs/docquery/internal/models"
)

const jobColumns = `id, document_id, tenant_id, status, stage, progress, retry_count, error_message, created_at, started_at, finished_at`

type PostgresStore struct {
	db         *pgxpool.Pool
	notifier   ProgressNotifier
	maxRetries int
}

func NewPostgresStore(db *pgxpool.Pool, notifier ProgressNotifier, maxRetries int) *PostgresStore {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &PostgresStore{db: db, notifier: notifier, maxRetries: maxRetries}
}

func (s *PostgresStore) Enqueue(ctx context.Context, docID, tenantID uuid.UUID) (*models.ProcessingJob, error) {
	row := s.db.QueryRow(ctx,
		`INSERT INTO processing_jobs (id, document_id, tenant_id, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+jobColumns,
		uuid.New(), docID, tenantID, models.JobStatusPending,
	)
	job, err := scanJob(row)
	if err != nil {
		// The partial unique index on active jobs rejects a second enqueue
		// while one is still pending or processing.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("%w: document already has an active processing job", models.ErrValidation)
		}
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	return job, nil
}

// ClaimNext locks and transitions the oldest pending row in one statement.
// FOR UPDATE SKIP LOCKED makes concurrent claimers pass over each other's
// rows instead of blocking, so exactly one worker wins each job.
func (s *PostgresStore) ClaimNext(ctx context.Context) (*models.ProcessingJob, error) {
	row := s.db.QueryRow(ctx,
		`WITH next AS (
			SELECT id FROM processing_jobs
			WHERE status = $1
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE processing_jobs j
		SET status = $2, started_at = now(), finished_at = NULL
		FROM next
		WHERE j.id = next.id
		RETURNING `+prefixed("j", jobColumns),
		models.JobStatusPending, models.JobStatusProcessing,
	)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) ReportProgress(ctx context.Context, jobID uuid.UUID, stage string, percent int) error {
	var progress int
	err := s.db.QueryRow(ctx,
		`UPDATE processing_jobs
		 SET stage = $2, progress = GREATEST(progress, $3)
		 WHERE id = $1 AND status = $4
		 RETURNING progress`,
		jobID, stage, percent, models.JobStatusProcessing,
	).Scan(&progress)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("report progress: %w", err)
	}

	s.notifier.PublishProgress(ctx, models.JobProgress{
		JobID:   jobID,
		Stage:   stage,
		Percent: progress,
		Status:  models.JobStatusProcessing,
	})
	return nil
}

func (s *PostgresStore) Complete(ctx context.Context, jobID uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE processing_jobs
		 SET status = $2, stage = $3, progress = 100, finished_at = now(), error_message = ''
		 WHERE id = $1`,
		jobID, models.JobStatusCompleted, models.StageFinalize,
	)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrJobNotFound
	}

	s.notifier.PublishProgress(ctx, models.JobProgress{
		JobID:   jobID,
		Stage:   models.StageFinalize,
		Percent: 100,
		Status:  models.JobStatusCompleted,
	})
	return nil
}

func (s *PostgresStore) Fail(ctx context.Context, jobID uuid.UUID, stage string, errMsg string) error {
	// One retry budget check and transition in a single statement: re-pend
	// while retries remain, otherwise terminal failure.
	row := s.db.QueryRow(ctx,
		`UPDATE processing_jobs
		 SET retry_count = retry_count + 1,
		     stage = $2,
		     error_message = $3,
		     status = CASE WHEN retry_count + 1 >= $4 THEN $5 ELSE $6 END,
		     finished_at = CASE WHEN retry_count + 1 >= $4 THEN now() ELSE NULL END,
		     started_at = NULL
		 WHERE id = $1
		 RETURNING status, progress`,
		jobID, stage, errMsg, s.maxRetries, models.JobStatusFailed, models.JobStatusPending,
	)
	var status string
	var progress int
	if err := row.Scan(&status, &progress); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrJobNotFound
		}
		return fmt.Errorf("fail job: %w", err)
	}

	s.notifier.PublishProgress(ctx, models.JobProgress{
		JobID:   jobID,
		Stage:   stage,
		Percent: progress,
		Status:  status,
		Error:   errMsg,
	})
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, jobID uuid.UUID) (*models.ProcessingJob, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM processing_jobs WHERE id = $1`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) SweepStale(ctx context.Context, staleAfter time.Duration) (int, error) {
	cutoff := time.Now().Add(-staleAfter)
	rows, err := s.db.Query(ctx,
		`UPDATE processing_jobs
		 SET retry_count = retry_count + 1,
		     error_message = 'worker timed out',
		     status = CASE WHEN retry_count + 1 >= $3 THEN $4 ELSE $5 END,
		     finished_at = CASE WHEN retry_count + 1 >= $3 THEN now() ELSE NULL END,
		     started_at = NULL
		 WHERE status = $1 AND started_at < $2
		 RETURNING id, stage, progress, status`,
		models.JobStatusProcessing, cutoff, s.maxRetries, models.JobStatusFailed, models.JobStatusPending,
	)
	if err != nil {
		return 0, fmt.Errorf("sweep stale jobs: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var id uuid.UUID
		var stage, status string
		var progress int
		if err := rows.Scan(&id, &stage, &progress, &status); err != nil {
			return count, fmt.Errorf("scan swept job: %w", err)
		}
		count++
		s.notifier.PublishProgress(ctx, models.JobProgress{
			JobID:   id,
			Stage:   stage,
			Percent: progress,
			Status:  status,
			Error:   "worker timed out",
		})
	}
	return count, rows.Err()
}

func scanJob(row pgx.Row) (*models.ProcessingJob, error) {
	var j models.ProcessingJob
	err := row.Scan(&j.ID, &j.DocumentID, &j.TenantID, &j.Status, &j.Stage, &j.Progress,
		&j.RetryCount, &j.ErrorMessage, &j.CreatedAt, &j.StartedAt, &j.FinishedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// prefixed qualifies a comma-separated column list with a table alias for
// UPDATE ... RETURNING.
func prefixed(alias, columns string) string {
	cols := strings.Split(columns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}
