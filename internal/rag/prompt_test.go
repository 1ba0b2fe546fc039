package rag

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/insuredocs/docquery/internal/indexstore"
	"github.com/insuredocs/docquery/internal/models"
)

func TestBuildPromptSourceTags(t *testing.T) {
	b := NewPromptBuilder(10, 1000)
	cands := []indexstore.Candidate{
		{Unit: models.Unit{ID: uuid.New(), ContentType: models.UnitTypeText, PageStart: 2, PageEnd: 2, Content: "some prose"}},
		{Unit: models.Unit{ID: uuid.New(), ContentType: models.UnitTypeTable, PageStart: 3, PageEnd: 3, Content: "| a | b |"}},
		{Unit: models.Unit{ID: uuid.New(), ContentType: models.UnitTypeText, PageStart: 4, PageEnd: 6, Content: "spanning prose"}},
	}

	msgs := b.Build("question", cands, nil, nil)
	system := msgs[0].Content

	for _, want := range []string{
		"[Source 1, page 2]",
		"[Source 2, page 3, table]",
		"[Source 3, pages 4-6]",
		"| a | b |",
	} {
		if !strings.Contains(system, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
	last := msgs[len(msgs)-1]
	if last.Role != "user" || last.Content != "question" {
		t.Errorf("last message = %+v, want user question", last)
	}
}

func TestStructuredExcerptMatchesQueryFields(t *testing.T) {
	data := json.RawMessage(`{"policy_number":"HX-2291-A","insured_name":"J. Doe","premium":1240.50,"parties":{"broker":"x"}}`)

	got := structuredExcerpt(data, "what is the policy number on this document")
	if !strings.Contains(got, "HX-2291-A") {
		t.Errorf("excerpt missing matched field value: %q", got)
	}
	if strings.Contains(got, "J. Doe") {
		t.Errorf("excerpt includes unmatched field: %q", got)
	}
	if strings.Contains(got, "broker") {
		t.Errorf("excerpt includes nested object: %q", got)
	}

	if got := structuredExcerpt(data, "summarize the document"); got != "" {
		t.Errorf("excerpt for unrelated query = %q, want empty", got)
	}
	if got := structuredExcerpt(nil, "policy number"); got != "" {
		t.Errorf("excerpt for nil data = %q, want empty", got)
	}
}

func TestTrimHistory(t *testing.T) {
	mk := func(n int, content string) []models.Message {
		out := make([]models.Message, n)
		for i := range out {
			role := models.RoleUser
			if i%2 == 1 {
				role = models.RoleAssistant
			}
			out[i] = models.Message{Role: role, Content: content}
		}
		return out
	}

	t.Run("window bounds message count", func(t *testing.T) {
		b := NewPromptBuilder(4, 0)
		got := b.trimHistory(mk(10, "short"))
		if len(got) != 4 {
			t.Fatalf("kept %d messages, want 4", len(got))
		}
	})

	t.Run("budget drops oldest turns", func(t *testing.T) {
		long := strings.Repeat("word ", 150)
		b := NewPromptBuilder(10, 250)
		got := b.trimHistory(mk(3, long))
		if len(got) != 1 {
			t.Fatalf("kept %d messages, want 1 within budget", len(got))
		}
	})

	t.Run("empty history", func(t *testing.T) {
		b := NewPromptBuilder(10, 1000)
		if got := b.trimHistory(nil); len(got) != 0 {
			t.Fatalf("kept %d messages, want 0", len(got))
		}
	})
}
