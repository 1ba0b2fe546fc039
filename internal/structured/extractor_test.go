package structured

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/insuredocs/docquery/internal/llm"
	"github.com/insuredocs/docquery/internal/models"
)

type scriptedGateway struct {
	response string
	err      error
	lastReq  llm.CompletionRequest
}

func (g *scriptedGateway) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	g.lastReq = req
	if g.err != nil {
		return nil, g.err
	}
	return &llm.CompletionResponse{Content: g.response}, nil
}

func (g *scriptedGateway) CompleteStream(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	return nil, errors.New("not used")
}

func (g *scriptedGateway) Embed(ctx context.Context, req llm.EmbeddingRequest) (*llm.EmbeddingResponse, error) {
	return nil, errors.New("not used")
}

func TestClassifyType(t *testing.T) {
	tests := []struct {
		response string
		want     string
	}{
		{"policy", DocTypePolicy},
		{" Claim \n", DocTypeClaim},
		{"INVOICE", DocTypeInvoice},
		{"something unexpected", DocTypeOther},
	}
	for _, tt := range tests {
		gw := &scriptedGateway{response: tt.response}
		e := NewExtractor(gw, "test-model", 1)
		got, err := e.ClassifyType(context.Background(), "POLICY DECLARATIONS ...")
		if err != nil {
			t.Fatalf("ClassifyType: %v", err)
		}
		if got != tt.want {
			t.Errorf("response %q classified as %s, want %s", tt.response, got, tt.want)
		}
	}
}

func TestExtractFiltersToSchema(t *testing.T) {
	gw := &scriptedGateway{response: "```json\n" + `{
		"policy_number": "HX-2291-A",
		"premium": 1240.50,
		"made_up_field": "noise"
	}` + "\n```"}
	e := NewExtractor(gw, "test-model", 1)

	raw, err := e.Extract(context.Background(), DocTypePolicy, "some document text")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	if got["policy_number"] != "HX-2291-A" {
		t.Errorf("policy_number = %v", got["policy_number"])
	}
	if _, ok := got["made_up_field"]; ok {
		t.Error("out-of-schema field survived")
	}
}

func TestExtractInvalidJSON(t *testing.T) {
	gw := &scriptedGateway{response: "Sure! The policy number is HX-2291-A."}
	e := NewExtractor(gw, "test-model", 1)

	_, err := e.Extract(context.Background(), DocTypePolicy, "text")
	if !errors.Is(err, models.ErrStructured) {
		t.Fatalf("err = %v, want ErrStructured", err)
	}
}

func TestExtractUnknownTypeSkipped(t *testing.T) {
	gw := &scriptedGateway{}
	e := NewExtractor(gw, "test-model", 1)

	raw, err := e.Extract(context.Background(), DocTypeOther, "text")
	if err != nil || raw != nil {
		t.Fatalf("Extract(other) = %v, %v; want nil, nil", raw, err)
	}
	if gw.lastReq.Model != "" {
		t.Error("LLM called for a type with no schema")
	}
}

func TestExtractPromptIncludesFieldNames(t *testing.T) {
	gw := &scriptedGateway{response: "{}"}
	e := NewExtractor(gw, "test-model", 1)

	if _, err := e.Extract(context.Background(), DocTypeClaim, "text"); err != nil {
		t.Fatal(err)
	}
	prompt := gw.lastReq.Messages[0].Content
	for _, f := range SchemaFor(DocTypeClaim) {
		if !strings.Contains(prompt, f.Name) {
			t.Errorf("prompt missing field %s", f.Name)
		}
	}
}
