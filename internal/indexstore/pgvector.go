package indexstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/insuredocs/docquery/internal/models"
)

type PgVectorStore struct {
	db *pgxpool.Pool
}

func NewPgVectorStore(db *pgxpool.Pool) *PgVectorStore {
	return &PgVectorStore{db: db}
}

func (s *PgVectorStore) Index(ctx context.Context, docID uuid.UUID, units []models.Unit) error {
	if len(units) == 0 {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// One batch per (document, schema version): clear any remnants of a
	// prior pass at this version, then insert everything. Other versions'
	// units stay untouched for side-by-side migration.
	version := units[0].SchemaVersion
	if _, err := tx.Exec(ctx,
		`DELETE FROM document_units WHERE document_id = $1 AND schema_version = $2`,
		docID, version,
	); err != nil {
		return fmt.Errorf("clear prior units: %w", err)
	}

	for _, u := range units {
		id := u.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO document_units
			 (id, document_id, tenant_id, ordinal, page_start, page_end, content_type, content, summary, embedding, schema_version, token_count)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			id, docID, u.TenantID, u.Ordinal, u.PageStart, u.PageEnd, u.ContentType,
			u.Content, u.Summary, pgvector.NewVector(u.Embedding), u.SchemaVersion, u.TokenCount,
		); err != nil {
			return fmt.Errorf("insert unit %d: %w", u.Ordinal, err)
		}
	}

	return tx.Commit(ctx)
}

const unitColumns = `id, document_id, tenant_id, ordinal, page_start, page_end, content_type, content, summary, schema_version, token_count, created_at`

func (s *PgVectorStore) Search(ctx context.Context, docID uuid.UUID, queryVec []float32, schemaVersion, k int) ([]Candidate, error) {
	if k <= 0 {
		k = 10
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+unitColumns+`, 1 - (embedding <=> $1) AS score
		 FROM document_units
		 WHERE document_id = $2 AND schema_version = $3
		 ORDER BY embedding <=> $1
		 LIMIT $4`,
		pgvector.NewVector(queryVec), docID, schemaVersion, k,
	)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	return scanCandidates(rows)
}

func (s *PgVectorStore) LexicalSearch(ctx context.Context, docID uuid.UUID, query string, schemaVersion, k int) ([]Candidate, error) {
	if k <= 0 {
		k = 10
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+unitColumns+`, ts_rank(tsv, plainto_tsquery('english', $1)) AS score
		 FROM document_units
		 WHERE document_id = $2 AND schema_version = $3
		   AND tsv @@ plainto_tsquery('english', $1)
		 ORDER BY score DESC
		 LIMIT $4`,
		query, docID, schemaVersion, k,
	)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer rows.Close()

	return scanCandidates(rows)
}

func (s *PgVectorStore) DeleteDocument(ctx context.Context, docID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM document_units WHERE document_id = $1`, docID)
	if err != nil {
		return fmt.Errorf("delete document units: %w", err)
	}
	return nil
}

func scanCandidates(rows pgx.Rows) ([]Candidate, error) {
	var results []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(
			&c.Unit.ID, &c.Unit.DocumentID, &c.Unit.TenantID, &c.Unit.Ordinal,
			&c.Unit.PageStart, &c.Unit.PageEnd, &c.Unit.ContentType, &c.Unit.Content,
			&c.Unit.Summary, &c.Unit.SchemaVersion, &c.Unit.TokenCount, &c.Unit.CreatedAt,
			&c.Score,
		); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		results = append(results, c)
	}
	return results, rows.Err()
}
