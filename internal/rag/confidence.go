package rag

import "github.com/insuredocs/docquery/internal/config"

// Confidence labels how strongly the retrieved evidence supports an answer.
type Confidence string

const (
	ConfidenceHigh           Confidence = "high"
	ConfidenceNeedsReview    Confidence = "needs_review"
	ConfidenceNotFound       Confidence = "not_found"
	ConfidenceConversational Confidence = "conversational"
)

// ScoreKind records which scoring stage produced a relevance score. Vector
// similarity and cross-encoder scores live on different scales, so a score is
// meaningless without its kind.
type ScoreKind string

const (
	ScoreVector   ScoreKind = "vector"
	ScoreReranked ScoreKind = "reranked"
)

// Score is a relevance score tagged with its provenance.
type Score struct {
	Kind  ScoreKind
	Value float64
}

// Classifier maps top evidence scores to confidence labels using a separate
// threshold table per score kind.
type Classifier struct {
	cfg config.ConfidenceConfig
}

func NewClassifier(cfg config.ConfidenceConfig) *Classifier {
	return &Classifier{cfg: cfg}
}

// Classify is pure: the same score and intent always yield the same label.
func (c *Classifier) Classify(top *Score, intent Intent) Confidence {
	if intent == IntentConversational {
		return ConfidenceConversational
	}
	if top == nil {
		return ConfidenceNotFound
	}
	var high, review float64
	switch top.Kind {
	case ScoreReranked:
		high, review = c.cfg.RerankHigh, c.cfg.RerankReview
	default:
		high, review = c.cfg.VectorHigh, c.cfg.VectorReview
	}
	switch {
	case top.Value >= high:
		return ConfidenceHigh
	case top.Value >= review:
		return ConfidenceNeedsReview
	default:
		return ConfidenceNotFound
	}
}
