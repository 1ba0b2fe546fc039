package models

import (
	"time"

	"github.com/google/uuid"
)

// ProcessingJob is one asynchronous processing pass over a document. A job is
// owned by at most one worker at a time; ownership is taken via a
// claim-with-skip read on the queue table.
type ProcessingJob struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	DocumentID   uuid.UUID  `json:"document_id" db:"document_id"`
	TenantID     uuid.UUID  `json:"tenant_id" db:"tenant_id"`
	Status       string     `json:"status" db:"status"`
	Stage        string     `json:"stage" db:"stage"`
	Progress     int        `json:"progress" db:"progress"`
	RetryCount   int        `json:"retry_count" db:"retry_count"`
	ErrorMessage string     `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty" db:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Pipeline stages in execution order, each with the progress percent reported
// when the stage begins. Progress for a job never decreases.
const (
	StageDownload   = "download"   // 0-10
	StageExtract    = "extract"    // 10-40
	StageSegment    = "segment"    // 40-55
	StageEmbed      = "embed"      // 55-70
	StageClassify   = "classify"   // 70-80
	StageStructured = "structured" // 80-95
	StageFinalize   = "finalize"   // 95-100
)

// JobProgress is the flat record streamed to progress subscribers.
type JobProgress struct {
	JobID   uuid.UUID `json:"job_id"`
	Stage   string    `json:"stage"`
	Percent int       `json:"percent"`
	Status  string    `json:"status"`
	Error   string    `json:"error,omitempty"`
}
