package rag

import (
	"sort"

	"github.com/google/uuid"

	"github.com/insuredocs/docquery/internal/indexstore"
)

// fuse blends vector and lexical candidate pools into a single ranking.
// Scores are min-max normalized within each pool before weighting, because
// cosine similarity and ts_rank live on incomparable scales. A unit present
// in both pools gets the sum of its weighted contributions, which favors
// units both signals agree on.
func fuse(vector, lexical []indexstore.Candidate, vectorWeight, lexicalWeight float64) []indexstore.Candidate {
	type entry struct {
		cand  indexstore.Candidate
		score float64
	}
	merged := make(map[uuid.UUID]*entry, len(vector)+len(lexical))

	add := func(pool []indexstore.Candidate, weight float64) {
		for i, c := range pool {
			s := weight * normalize(pool, i)
			if e, ok := merged[c.Unit.ID]; ok {
				e.score += s
			} else {
				merged[c.Unit.ID] = &entry{cand: c, score: s}
			}
		}
	}
	add(vector, vectorWeight)
	add(lexical, lexicalWeight)

	out := make([]indexstore.Candidate, 0, len(merged))
	for _, e := range merged {
		e.cand.Score = e.score
		out = append(out, e.cand)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Unit.ID.String() < out[j].Unit.ID.String()
	})
	return out
}

// normalize maps pool[i].Score into [0,1] relative to the pool's range. A
// single-element or constant-score pool normalizes to 1.
func normalize(pool []indexstore.Candidate, i int) float64 {
	min, max := pool[0].Score, pool[0].Score
	for _, c := range pool[1:] {
		if c.Score < min {
			min = c.Score
		}
		if c.Score > max {
			max = c.Score
		}
	}
	if max == min {
		return 1
	}
	return (pool[i].Score - min) / (max - min)
}
