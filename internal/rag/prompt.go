package rag

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/insuredocs/docquery/internal/indexstore"
	"github.com/insuredocs/docquery/internal/llm"
	"github.com/insuredocs/docquery/internal/models"
	"github.com/insuredocs/docquery/pkg/tokenizer"
)

const systemInstructions = `You are a document assistant. Answer the user's question using only the numbered sources below.
Cite the sources you used inline, like [Source 2]. Quote exact values (numbers, dates, identifiers) verbatim from the sources.
If the sources do not contain the answer, say so plainly instead of guessing.`

// PromptBuilder assembles the completion request for an answer: system
// instructions, the retrieved evidence, any matching structured fields, and a
// token-bounded tail of the conversation.
type PromptBuilder struct {
	historyWindow int
	historyBudget int
}

func NewPromptBuilder(historyWindow, historyBudget int) *PromptBuilder {
	return &PromptBuilder{historyWindow: historyWindow, historyBudget: historyBudget}
}

// Build returns the message sequence for the LLM. The evidence block lives in
// the system message so the model cannot mistake it for user turns.
func (b *PromptBuilder) Build(query string, candidates []indexstore.Candidate, structured json.RawMessage, history []models.Message) []llm.Message {
	var sb strings.Builder
	sb.WriteString(systemInstructions)
	sb.WriteString("\n\nSources:\n")
	for i, c := range candidates {
		sb.WriteString(sourceHeader(i+1, c.Unit))
		sb.WriteString("\n")
		sb.WriteString(c.Unit.Content)
		sb.WriteString("\n\n")
	}
	if excerpt := structuredExcerpt(structured, query); excerpt != "" {
		sb.WriteString("Extracted fields:\n")
		sb.WriteString(excerpt)
		sb.WriteString("\n")
	}

	msgs := []llm.Message{{Role: "system", Content: sb.String()}}
	for _, m := range b.trimHistory(history) {
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, llm.Message{Role: "user", Content: query})
	return msgs
}

func sourceHeader(n int, u models.Unit) string {
	label := "page"
	pages := fmt.Sprintf("%d", u.PageStart)
	if u.PageEnd > u.PageStart {
		label = "pages"
		pages = fmt.Sprintf("%d-%d", u.PageStart, u.PageEnd)
	}
	if u.ContentType == models.UnitTypeTable {
		return fmt.Sprintf("[Source %d, %s %s, table]", n, label, pages)
	}
	return fmt.Sprintf("[Source %d, %s %s]", n, label, pages)
}

// structuredExcerpt surfaces extracted fields whose names appear in the
// query, so exact values reach the model even when the source text scored
// poorly. Nested objects are skipped; top-level scalars cover the schemas in
// use.
func structuredExcerpt(structured json.RawMessage, query string) string {
	if len(structured) == 0 {
		return ""
	}
	var fields map[string]any
	if err := json.Unmarshal(structured, &fields); err != nil {
		return ""
	}
	q := strings.ToLower(query)
	var sb strings.Builder
	for key, val := range fields {
		switch val.(type) {
		case map[string]any, []any, nil:
			continue
		}
		if strings.Contains(q, strings.ToLower(strings.ReplaceAll(key, "_", " "))) ||
			strings.Contains(q, strings.ToLower(key)) {
			fmt.Fprintf(&sb, "  %s: %v\n", key, val)
		}
	}
	return sb.String()
}

// trimHistory keeps the most recent turns, bounded first by message count and
// then by token budget. Older turns drop first.
func (b *PromptBuilder) trimHistory(history []models.Message) []models.Message {
	if b.historyWindow > 0 && len(history) > b.historyWindow {
		history = history[len(history)-b.historyWindow:]
	}
	if b.historyBudget <= 0 {
		return history
	}
	total := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		t := tokenizer.Estimate(history[i].Content)
		if total+t > b.historyBudget {
			break
		}
		total += t
		start = i
	}
	return history[start:]
}
