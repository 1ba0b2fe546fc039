package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/insuredocs/docquery/internal/cache"
	"github.com/insuredocs/docquery/internal/config"
	"github.com/insuredocs/docquery/internal/embedding"
	"github.com/insuredocs/docquery/internal/indexstore"
)

// Retrieval is the outcome of one retrieval pass: the evidence units to build
// the prompt from, plus the provenance-tagged top score that confidence
// classification keys off.
type Retrieval struct {
	Candidates []indexstore.Candidate
	Top        *Score
}

// Retriever runs hybrid search: vector and lexical candidate pools fetched
// independently, fused by weighted score, then reranked when a reranker is
// configured and reachable.
type Retriever struct {
	embedder *embedding.Service
	store    indexstore.Store
	cache    *cache.Cache
	reranker Reranker
	cfg      config.RetrievalConfig
}

// NewRetriever builds a retriever. cache and reranker may be nil; retrieval
// still works without them, just slower and on raw vector scores.
func NewRetriever(embedder *embedding.Service, store indexstore.Store, qcache *cache.Cache, reranker Reranker, cfg config.RetrievalConfig) *Retriever {
	return &Retriever{
		embedder: embedder,
		store:    store,
		cache:    qcache,
		reranker: reranker,
		cfg:      cfg,
	}
}

func (r *Retriever) Retrieve(ctx context.Context, docID uuid.UUID, query string) (*Retrieval, error) {
	queryVec, err := r.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	vector, err := r.store.Search(ctx, docID, queryVec, r.cfg.SchemaVersion, r.cfg.CandidatePool)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	lexical, err := r.store.LexicalSearch(ctx, docID, query, r.cfg.SchemaVersion, r.cfg.CandidatePool)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	if len(vector) == 0 && len(lexical) == 0 {
		return &Retrieval{}, nil
	}

	fused := fuse(vector, lexical, r.cfg.VectorWeight, r.cfg.LexicalWeight)

	var top *Score
	if len(vector) > 0 {
		top = &Score{Kind: ScoreVector, Value: vector[0].Score}
	}

	final := fused
	if n := min(r.cfg.RerankTopN, len(fused)); r.reranker != nil && n > 0 {
		rctx, cancel := context.WithTimeout(ctx, r.cfg.RerankTimeout)
		rescored, rerr := r.reranker.Rerank(rctx, query, fused[:n])
		cancel()
		switch {
		case rerr != nil:
			slog.Warn("reranker unavailable, using fused ranking", "doc_id", docID, "error", rerr)
		case len(rescored) == 0:
			slog.Warn("reranker returned no candidates, using fused ranking", "doc_id", docID)
		default:
			final = rescored
			top = &Score{Kind: ScoreReranked, Value: rescored[0].Score}
		}
	}

	if len(final) > r.cfg.TopK {
		final = final[:r.cfg.TopK]
	}
	return &Retrieval{Candidates: final, Top: top}, nil
}

// embedQuery embeds the query text, consulting the cache first. Cache
// failures degrade to a fresh embedding call, never to a request failure.
func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	key := queryCacheKey(query, r.cfg.SchemaVersion)
	if r.cache != nil {
		var vec []float32
		err := r.cache.Get(ctx, key, &vec)
		if err == nil && len(vec) > 0 {
			return vec, nil
		}
		if err != nil && !errors.Is(err, cache.ErrMiss) {
			slog.Warn("query embedding cache read failed", "error", err)
		}
	}

	vec, err := r.embedder.EmbedSingle(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if r.cache != nil {
		if err := r.cache.Set(ctx, key, vec, 24*time.Hour); err != nil {
			slog.Warn("query embedding cache write failed", "error", err)
		}
	}
	return vec, nil
}

func queryCacheKey(query string, schemaVersion int) string {
	sum := sha256.Sum256([]byte(query))
	return fmt.Sprintf("emb:v%d:%s", schemaVersion, hex.EncodeToString(sum[:]))
}
