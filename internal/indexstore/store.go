package indexstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/insuredocs/docquery/internal/models"
)

// Candidate is one search hit: a unit plus the raw score from whichever
// search produced it. Vector similarity and lexical rank live on different
// scales; fusion normalizes them before blending.
type Candidate struct {
	Unit  models.Unit `json:"unit"`
	Score float64     `json:"score"`
}

// Store is the per-document unit index. Units for one processing pass land in
// a single transactional batch so a partially indexed document is never
// visible to a search.
type Store interface {
	// Index replaces the document's units for the batch's schema version.
	// Units from other schema versions are left alone so a model migration
	// can run both side by side.
	Index(ctx context.Context, docID uuid.UUID, units []models.Unit) error

	// Search returns the top-k units by cosine similarity, restricted to one
	// embedding schema version so scores are never mixed across vector
	// spaces.
	Search(ctx context.Context, docID uuid.UUID, queryVec []float32, schemaVersion, k int) ([]Candidate, error)

	// LexicalSearch returns the top-k units by keyword rank.
	LexicalSearch(ctx context.Context, docID uuid.UUID, query string, schemaVersion, k int) ([]Candidate, error)

	DeleteDocument(ctx context.Context, docID uuid.UUID) error
}
