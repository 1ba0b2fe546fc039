package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Document struct {
	ID               uuid.UUID       `json:"id" db:"id"`
	TenantID         uuid.UUID       `json:"tenant_id" db:"tenant_id"`
	Title            string          `json:"title" db:"title"`
	FilePath         string          `json:"file_path,omitempty" db:"file_path"`
	FileType         string          `json:"file_type,omitempty" db:"file_type"`
	FileSizeBytes    int64           `json:"file_size_bytes,omitempty" db:"file_size_bytes"`
	Status           string          `json:"status" db:"status"`
	PageCount        int             `json:"page_count" db:"page_count"`
	DocumentType     string          `json:"document_type,omitempty" db:"document_type"`
	StructuredData   json.RawMessage `json:"structured_data,omitempty" db:"structured_data"`
	StructuredSchema int             `json:"structured_schema,omitempty" db:"structured_schema"`
	StructuredError  string          `json:"structured_error,omitempty" db:"structured_error"`
	ErrorMessage     string          `json:"error_message,omitempty" db:"error_message"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

const (
	DocStatusUploaded   = "uploaded"
	DocStatusProcessing = "processing"
	DocStatusReady      = "ready"
	DocStatusFailed     = "failed"
)

const (
	UnitTypeText  = "text"
	UnitTypeTable = "table"
)

// Unit is one retrieval-sized segment of a document: either a run of text or
// a whole preserved table. Units are written in a single batch per processing
// pass and never mutated afterwards.
type Unit struct {
	ID            uuid.UUID `json:"id" db:"id"`
	DocumentID    uuid.UUID `json:"document_id" db:"document_id"`
	TenantID      uuid.UUID `json:"tenant_id" db:"tenant_id"`
	Ordinal       int       `json:"ordinal" db:"ordinal"`
	PageStart     int       `json:"page_start" db:"page_start"`
	PageEnd       int       `json:"page_end" db:"page_end"`
	ContentType   string    `json:"content_type" db:"content_type"`
	Content       string    `json:"content" db:"content"`
	Summary       string    `json:"summary,omitempty" db:"summary"`
	Embedding     []float32 `json:"-" db:"embedding"`
	SchemaVersion int       `json:"schema_version" db:"schema_version"`
	TokenCount    int       `json:"token_count" db:"token_count"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// EmbeddingText returns the text the unit's vector is computed over. Table
// units embed their rule-based summary; raw tabular text retrieves poorly.
func (u *Unit) EmbeddingText() string {
	if u.ContentType == UnitTypeTable && u.Summary != "" {
		return u.Summary
	}
	return u.Content
}
