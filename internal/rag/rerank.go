package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/insuredocs/docquery/internal/indexstore"
	"github.com/insuredocs/docquery/internal/models"
)

// Reranker rescores candidates against the query with a cross-encoder.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []indexstore.Candidate) ([]indexstore.Candidate, error)
}

// HTTPReranker calls an external reranking service. The service receives the
// query plus candidate texts and returns a relevance score per candidate.
type HTTPReranker struct {
	baseURL string
	client  *http.Client
}

func NewHTTPReranker(baseURL string, timeout time.Duration) *HTTPReranker {
	return &HTTPReranker{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Scores []float64 `json:"scores"`
}

func (r *HTTPReranker) Rerank(ctx context.Context, query string, candidates []indexstore.Candidate) ([]indexstore.Candidate, error) {
	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Unit.Content
	}
	body, err := json.Marshal(rerankRequest{Query: query, Documents: docs})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", models.ErrRerankUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", models.ErrRerankUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrRerankUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", models.ErrRerankUnavailable, resp.StatusCode)
	}

	var out rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", models.ErrRerankUnavailable, err)
	}
	if len(out.Scores) != len(candidates) {
		return nil, fmt.Errorf("%w: got %d scores for %d candidates", models.ErrRerankUnavailable, len(out.Scores), len(candidates))
	}

	rescored := make([]indexstore.Candidate, len(candidates))
	copy(rescored, candidates)
	for i := range rescored {
		rescored[i].Score = out.Scores[i]
	}
	sort.Slice(rescored, func(i, j int) bool { return rescored[i].Score > rescored[j].Score })
	return rescored, nil
}
