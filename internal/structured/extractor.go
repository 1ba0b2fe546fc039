package structured

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/insuredocs/docquery/internal/llm"
	"github.com/insuredocs/docquery/internal/models"
	"github.com/insuredocs/docquery/pkg/tokenizer"
)

// maxDocTokens bounds how much document text goes into an extraction prompt.
// Headers and declarations pages carry the fields; the tail rarely does.
const maxDocTokens = 6000

// Extractor classifies a document's type and pulls schema fields out of it
// with an LLM. Both operations are best effort: the caller records failures
// and moves on.
type Extractor struct {
	gateway llm.Gateway
	model   string
	schema  int
}

func NewExtractor(gw llm.Gateway, model string, schemaVersion int) *Extractor {
	return &Extractor{gateway: gw, model: model, schema: schemaVersion}
}

// SchemaVersion reports which schema revision extracted data is stamped with.
func (e *Extractor) SchemaVersion() int { return e.schema }

// ClassifyType assigns one of the known document types from the opening text.
func (e *Extractor) ClassifyType(ctx context.Context, text string) (string, error) {
	prompt := fmt.Sprintf(
		"Classify this document as exactly one of: %s.\nRespond with only the type, nothing else.\n\nDocument:\n%s",
		strings.Join(knownTypes(), ", "),
		tokenizer.Truncate(text, 2000),
	)
	resp, err := e.gateway.Complete(ctx, llm.CompletionRequest{
		Model:    e.model,
		Messages: []llm.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("classify document type: %w", err)
	}
	got := strings.ToLower(strings.TrimSpace(resp.Content))
	for _, t := range knownTypes() {
		if got == t {
			return t, nil
		}
	}
	return DocTypeOther, nil
}

// Extract pulls the schema fields for docType out of the document text and
// returns them as a JSON object. Missing fields come back as null.
func (e *Extractor) Extract(ctx context.Context, docType, text string) (json.RawMessage, error) {
	fields := SchemaFor(docType)
	if len(fields) == 0 {
		return nil, nil
	}

	var spec strings.Builder
	for _, f := range fields {
		fmt.Fprintf(&spec, "  %q: %s\n", f.Name, f.Description)
	}
	prompt := fmt.Sprintf(
		`Extract these fields from the document below. Respond with a single JSON object and nothing else.
Use null for any field not present. Copy identifiers and dates exactly as printed.

Fields:
%s
Document:
%s`,
		spec.String(),
		tokenizer.Truncate(text, maxDocTokens),
	)

	resp, err := e.gateway.Complete(ctx, llm.CompletionRequest{
		Model:    e.model,
		Messages: []llm.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStructured, err)
	}

	raw := stripFences(resp.Content)
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, fmt.Errorf("%w: model returned invalid JSON: %v", models.ErrStructured, err)
	}
	// Drop keys outside the schema so downstream consumers see a stable shape.
	allowed := make(map[string]bool, len(fields))
	for _, f := range fields {
		allowed[f.Name] = true
	}
	for k := range obj {
		if !allowed[k] {
			delete(obj, k)
		}
	}

	out, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStructured, err)
	}
	return out, nil
}

// stripFences removes a markdown code fence wrapper if the model added one.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
