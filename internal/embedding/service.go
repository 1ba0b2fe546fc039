package embedding

import (
	"context"
	"fmt"

	"github.com/insuredocs/docquery/internal/llm"
	"github.com/insuredocs/docquery/internal/models"
)

// Service produces vectors stamped with the embedding schema version. The
// version ties a vector to the model that produced it, so two model
// generations can coexist in the index while a migration backfills old units.
type Service struct {
	gateway       llm.Gateway
	model         string
	schemaVersion int
}

func NewService(gw llm.Gateway, model string, schemaVersion int) *Service {
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &Service{gateway: gw, model: model, schemaVersion: schemaVersion}
}

func (s *Service) SchemaVersion() int { return s.schemaVersion }

func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	// Provider input limits cap a request at 100 texts.
	const batchSize = 100
	var all [][]float32

	for i := 0; i < len(texts); i += batchSize {
		end := min(i+batchSize, len(texts))

		resp, err := s.gateway.Embed(ctx, llm.EmbeddingRequest{
			Model: s.model,
			Input: texts[i:end],
		})
		if err != nil {
			return nil, fmt.Errorf("%w: batch %d: %v", models.ErrEmbedding, i/batchSize, err)
		}
		all = append(all, resp.Embeddings...)
	}

	if len(all) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs", models.ErrEmbedding, len(all), len(texts))
	}
	return all, nil
}

func (s *Service) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("%w: no embedding returned", models.ErrEmbedding)
	}
	return vecs[0], nil
}

// EmbedUnits fills in each unit's vector and version stamp. Table units are
// embedded over their summaries.
func (s *Service) EmbedUnits(ctx context.Context, units []models.Unit) error {
	texts := make([]string, len(units))
	for i := range units {
		texts[i] = units[i].EmbeddingText()
	}

	vecs, err := s.Embed(ctx, texts)
	if err != nil {
		return err
	}
	for i := range units {
		units[i].Embedding = vecs[i]
		units[i].SchemaVersion = s.schemaVersion
	}
	return nil
}
