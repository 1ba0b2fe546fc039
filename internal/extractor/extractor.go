// Package extractor wraps the structural extraction service: an opaque
// converter from document bytes to markdown with "--- PAGE N ---" markers.
package extractor

import (
	"context"
)

// Result is the extractor's marked-up output.
type Result struct {
	Markdown  string `json:"markdown"`
	PageCount int    `json:"page_count"`
}

type Extractor interface {
	Extract(ctx context.Context, data []byte, filename string) (*Result, error)
}
