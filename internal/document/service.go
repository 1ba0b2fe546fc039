package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/insuredocs/docquery/internal/indexstore"
	"github.com/insuredocs/docquery/internal/jobs"
	"github.com/insuredocs/docquery/internal/models"
	"github.com/insuredocs/docquery/internal/storage"
)

const docColumns = `id, tenant_id, title, file_path, file_type, file_size_bytes, status,
	page_count, document_type, structured_data, structured_schema, structured_error,
	error_message, created_at, updated_at`

var allowedTypes = map[string]bool{
	".pdf": true, ".md": true, ".txt": true, ".docx": true,
}

// Service owns document records and their uploaded files. Uploading a
// document also enqueues its processing job, so callers get an immediately
// pollable job back.
type Service struct {
	db    *pgxpool.Pool
	blobs storage.BlobStore
	queue jobs.Store
	index indexstore.Store
}

func NewService(db *pgxpool.Pool, blobs storage.BlobStore, queue jobs.Store, index indexstore.Store) *Service {
	return &Service{db: db, blobs: blobs, queue: queue, index: index}
}

type UploadRequest struct {
	TenantID uuid.UUID
	Title    string
	Filename string
	Size     int64
	Data     io.Reader
}

type UploadResult struct {
	Document *models.Document      `json:"document"`
	Job      *models.ProcessingJob `json:"job"`
}

func (s *Service) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	ext := strings.ToLower(filepath.Ext(req.Filename))
	if !allowedTypes[ext] {
		return nil, fmt.Errorf("%w: unsupported file type %q", models.ErrValidation, ext)
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(req.Filename), ext)
	}
	if title == "" {
		return nil, fmt.Errorf("%w: title required", models.ErrValidation)
	}

	docID := uuid.New()
	path := fmt.Sprintf("%s/%s%s", req.TenantID, docID, ext)

	if err := s.blobs.Upload(ctx, path, req.Data, "application/octet-stream"); err != nil {
		return nil, fmt.Errorf("upload to storage: %w", err)
	}

	var doc models.Document
	err := s.db.QueryRow(ctx,
		`INSERT INTO documents (id, tenant_id, title, file_path, file_type, file_size_bytes, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+docColumns,
		docID, req.TenantID, title, path, ext, req.Size, models.DocStatusUploaded,
	).Scan(scanTargets(&doc)...)
	if err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}

	job, err := s.queue.Enqueue(ctx, doc.ID, doc.TenantID)
	if err != nil {
		return nil, fmt.Errorf("enqueue processing: %w", err)
	}
	return &UploadResult{Document: &doc, Job: job}, nil
}

func (s *Service) Get(ctx context.Context, tenantID, id uuid.UUID) (*models.Document, error) {
	var doc models.Document
	err := s.db.QueryRow(ctx,
		`SELECT `+docColumns+` FROM documents WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	).Scan(scanTargets(&doc)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &doc, nil
}

func (s *Service) List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]models.Document, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+docColumns+` FROM documents WHERE tenant_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		tenantID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := []models.Document{}
	for rows.Next() {
		var doc models.Document
		if err := rows.Scan(scanTargets(&doc)...); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// Delete removes the record, its indexed units, and the stored file. The
// blob delete runs last; a stale blob is recoverable, a stale DB row is not.
func (s *Service) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	doc, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if err := s.index.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("delete units: %w", err)
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM documents WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrDocumentNotFound
	}
	if doc.FilePath != "" {
		if err := s.blobs.Delete(ctx, doc.FilePath); err != nil {
			return fmt.Errorf("delete blob: %w", err)
		}
	}
	return nil
}

// Reprocess enqueues a fresh processing job for an existing document, used
// after segmenter or embedding changes to rebuild the index side by side.
func (s *Service) Reprocess(ctx context.Context, tenantID, id uuid.UUID) (*models.ProcessingJob, error) {
	doc, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return s.queue.Enqueue(ctx, doc.ID, doc.TenantID)
}

// Status transitions below are worker-facing and tenant-unscoped; the worker
// already holds a claimed job for the document.

func (s *Service) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	return s.setStatus(ctx, id, models.DocStatusProcessing, "")
}

func (s *Service) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return s.setStatus(ctx, id, models.DocStatusFailed, reason)
}

// MarkReady flips the document visible to queries, recording the final page
// count in the same statement.
func (s *Service) MarkReady(ctx context.Context, id uuid.UUID, pageCount int) error {
	_, err := s.db.Exec(ctx,
		`UPDATE documents SET status = $2, page_count = $3, error_message = '', updated_at = now() WHERE id = $1`,
		id, models.DocStatusReady, pageCount,
	)
	if err != nil {
		return fmt.Errorf("mark ready: %w", err)
	}
	return nil
}

func (s *Service) setStatus(ctx context.Context, id uuid.UUID, status, errMsg string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE documents SET status = $2, error_message = $3, updated_at = now() WHERE id = $1`,
		id, status, errMsg,
	)
	if err != nil {
		return fmt.Errorf("set status %s: %w", status, err)
	}
	return nil
}

func (s *Service) SetType(ctx context.Context, id uuid.UUID, docType string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE documents SET document_type = $2, updated_at = now() WHERE id = $1`,
		id, docType,
	)
	if err != nil {
		return fmt.Errorf("set document type: %w", err)
	}
	return nil
}

func (s *Service) SetStructured(ctx context.Context, id uuid.UUID, data []byte, schemaVersion int) error {
	_, err := s.db.Exec(ctx,
		`UPDATE documents SET structured_data = $2, structured_schema = $3, structured_error = '', updated_at = now() WHERE id = $1`,
		id, data, schemaVersion,
	)
	if err != nil {
		return fmt.Errorf("set structured data: %w", err)
	}
	return nil
}

// SetStructuredError records why extraction failed without touching any
// previously extracted data.
func (s *Service) SetStructuredError(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE documents SET structured_error = $2, updated_at = now() WHERE id = $1`,
		id, reason,
	)
	if err != nil {
		return fmt.Errorf("set structured error: %w", err)
	}
	return nil
}

func scanTargets(doc *models.Document) []any {
	return []any{
		&doc.ID, &doc.TenantID, &doc.Title, &doc.FilePath, &doc.FileType, &doc.FileSizeBytes,
		&doc.Status, &doc.PageCount, &doc.DocumentType, &doc.StructuredData, &doc.StructuredSchema,
		&doc.StructuredError, &doc.ErrorMessage, &doc.CreatedAt, &doc.UpdatedAt,
	}
}
