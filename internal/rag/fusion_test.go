package rag

import (
	"testing"

	"github.com/google/uuid"

	"github.com/insuredocs/docquery/internal/indexstore"
	"github.com/insuredocs/docquery/internal/models"
)

func cand(id uuid.UUID, score float64, content string) indexstore.Candidate {
	return indexstore.Candidate{
		Unit:  models.Unit{ID: id, Content: content, ContentType: models.UnitTypeText},
		Score: score,
	}
}

func TestFuseBothSignalsWin(t *testing.T) {
	shared := uuid.New()
	vOnly := uuid.New()
	lOnly := uuid.New()

	vector := []indexstore.Candidate{
		cand(vOnly, 0.9, "vector only"),
		cand(shared, 0.7, "both"),
	}
	lexical := []indexstore.Candidate{
		cand(lOnly, 5.0, "lexical only"),
		cand(shared, 4.0, "both"),
	}

	out := fuse(vector, lexical, 0.7, 0.3)
	if len(out) != 3 {
		t.Fatalf("expected 3 fused candidates, got %d", len(out))
	}
	// shared is the minimum of both pools, so it normalizes to 0 twice and
	// cannot win; vOnly normalizes to 1 in the heavier pool.
	if out[0].Unit.ID != vOnly {
		t.Errorf("expected vector-heavy candidate first, got %s", out[0].Unit.ID)
	}
}

func TestFuseSharedUnitSumsContributions(t *testing.T) {
	shared := uuid.New()
	a := uuid.New()
	b := uuid.New()

	vector := []indexstore.Candidate{
		cand(a, 0.9, "a"),
		cand(shared, 0.8, "shared"),
		cand(b, 0.5, "b"),
	}
	lexical := []indexstore.Candidate{
		cand(shared, 3.0, "shared"),
		cand(b, 1.0, "b"),
	}

	out := fuse(vector, lexical, 0.7, 0.3)
	// shared gets 0.7*0.75 + 0.3*1.0 = 0.825, beating a's 0.7.
	if out[0].Unit.ID != shared {
		t.Errorf("expected shared candidate first, got %s", out[0].Unit.ID)
	}
}

func TestFuseLexicalExactMatchSurvives(t *testing.T) {
	// An identifier lookup: the exact row scores top in lexical search but is
	// absent from the vector pool. It must still reach the fused ranking.
	exact := uuid.New()
	vector := []indexstore.Candidate{
		cand(uuid.New(), 0.6, "general prose about coverage"),
		cand(uuid.New(), 0.55, "more prose"),
	}
	lexical := []indexstore.Candidate{
		cand(exact, 9.0, "| HX-2291-A | active | 2026-01-01 |"),
	}

	out := fuse(vector, lexical, 0.7, 0.3)
	found := false
	for _, c := range out {
		if c.Unit.ID == exact {
			found = true
		}
	}
	if !found {
		t.Fatal("lexical exact match missing from fused results")
	}
}

func TestFuseDeterministic(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()}
	vector := []indexstore.Candidate{
		cand(ids[0], 0.9, "a"), cand(ids[1], 0.8, "b"),
	}
	lexical := []indexstore.Candidate{
		cand(ids[2], 2.0, "c"), cand(ids[3], 1.5, "d"),
	}

	first := fuse(vector, lexical, 0.7, 0.3)
	for i := 0; i < 20; i++ {
		again := fuse(vector, lexical, 0.7, 0.3)
		for j := range first {
			if again[j].Unit.ID != first[j].Unit.ID {
				t.Fatalf("run %d: order differs at %d", i, j)
			}
		}
	}
}

func TestFuseSingleElementPools(t *testing.T) {
	v := uuid.New()
	out := fuse([]indexstore.Candidate{cand(v, 0.42, "only")}, nil, 0.7, 0.3)
	if len(out) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(out))
	}
	if out[0].Score != 0.7 {
		t.Errorf("single-element pool should normalize to weight, got %f", out[0].Score)
	}
}
