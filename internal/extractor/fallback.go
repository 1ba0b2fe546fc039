package extractor

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/insuredocs/docquery/internal/models"
)

// Fallback wraps a primary extractor with a local plain-text PDF path. The
// local path loses table structure recognition, so it only runs when the
// service is unreachable and the input is a PDF at all.
type Fallback struct {
	primary Extractor
}

func NewFallback(primary Extractor) *Fallback {
	return &Fallback{primary: primary}
}

func (f *Fallback) Extract(ctx context.Context, data []byte, filename string) (*Result, error) {
	result, err := f.primary.Extract(ctx, data, filename)
	if err == nil {
		return result, nil
	}

	if !strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		return nil, err
	}

	slog.Warn("structural extractor unavailable, falling back to local pdf text",
		"filename", filename, "error", err)

	local, localErr := extractPDF(data)
	if localErr != nil {
		// Report the primary failure; the fallback is best-effort.
		return nil, err
	}
	return local, nil
}

func extractPDF(data []byte) (*Result, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: open pdf: %v", models.ErrExtraction, err)
	}

	var sb strings.Builder
	numPages := reader.NumPage()

	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		fmt.Fprintf(&sb, "--- PAGE %d ---\n\n%s\n\n", i, strings.TrimSpace(text))
	}

	if strings.TrimSpace(sb.String()) == "" {
		return nil, fmt.Errorf("%w: no extractable text", models.ErrExtraction)
	}

	return &Result{Markdown: sb.String(), PageCount: numPages}, nil
}
