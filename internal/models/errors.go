package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for the processing and query paths. Stage failures wrap one
// of these so callers can branch with errors.Is without string matching.
var (
	ErrValidation        = errors.New("validation failed")
	ErrExtraction        = errors.New("structural extraction failed")
	ErrEmbedding         = errors.New("embedding generation failed")
	ErrStructured        = errors.New("structured field extraction failed")
	ErrRerankUnavailable = errors.New("reranker unavailable")
	ErrStreamTimeout     = errors.New("completion stream timed out")
	ErrRateLimited       = errors.New("completion provider rate limited")
	ErrCompletion        = errors.New("completion failed")
	ErrJobNotFound       = errors.New("job not found")
	ErrDocumentNotFound  = errors.New("document not found")
)

// StageError tags a pipeline failure with the stage it happened in. The tag
// ends up on the job record so failures are attributable after the fact.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func NewStageError(stage string, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}
