package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/insuredocs/docquery/internal/indexstore"
	"github.com/insuredocs/docquery/internal/llm"
	"github.com/insuredocs/docquery/internal/models"
)

const notFoundAnswer = "I could not find anything in this document that answers your question. Try rephrasing, or check whether the document covers this topic."

// AnswerRequest carries everything needed to answer one question against one
// document. History and Structured are optional.
type AnswerRequest struct {
	DocumentID uuid.UUID
	Query      string
	History    []models.Message
	Structured json.RawMessage
	Provider   string
	Model      string
}

// Answerer runs the full question path: intent check, retrieval, prompt
// assembly, streamed completion, confidence.
type Answerer struct {
	retriever  *Retriever
	classifier *Classifier
	prompts    *PromptBuilder
	gateway    llm.Gateway
}

func NewAnswerer(retriever *Retriever, classifier *Classifier, prompts *PromptBuilder, gateway llm.Gateway) *Answerer {
	return &Answerer{
		retriever:  retriever,
		classifier: classifier,
		prompts:    prompts,
		gateway:    gateway,
	}
}

// Answer streams the response as events. The channel always ends with either
// a done event (preceded by a confidence event) or an error event, and closes
// promptly when ctx is cancelled. Cancellation propagates to the upstream
// completion stream.
func (a *Answerer) Answer(ctx context.Context, req AnswerRequest) <-chan Event {
	out := make(chan Event, 16)
	go func() {
		defer close(out)
		a.run(ctx, req, out)
	}()
	return out
}

func (a *Answerer) run(ctx context.Context, req AnswerRequest, out chan<- Event) {
	intent := DetectIntent(req.Query)
	if intent == IntentConversational {
		a.converse(ctx, req, out)
		return
	}

	ret, err := a.retriever.Retrieve(ctx, req.DocumentID, req.Query)
	if err != nil {
		emit(ctx, out, Event{Type: EventError, Err: fmt.Errorf("retrieve: %w", err)})
		return
	}

	if len(ret.Candidates) == 0 {
		if !emit(ctx, out, Event{Type: EventText, Text: notFoundAnswer}) {
			return
		}
		a.finish(ctx, out, ConfidenceNotFound)
		return
	}

	for _, c := range ret.Candidates {
		if !emit(ctx, out, Event{Type: EventSource, Source: toSource(c)}) {
			return
		}
	}

	msgs := a.prompts.Build(req.Query, ret.Candidates, req.Structured, req.History)
	if !a.streamCompletion(ctx, req, msgs, out) {
		return
	}
	a.finish(ctx, out, a.classifier.Classify(ret.Top, intent))
}

// converse answers small talk without touching the index.
func (a *Answerer) converse(ctx context.Context, req AnswerRequest, out chan<- Event) {
	msgs := []llm.Message{
		{Role: "system", Content: "You are a friendly document assistant. Reply briefly and offer to answer questions about the user's document."},
		{Role: "user", Content: req.Query},
	}
	if !a.streamCompletion(ctx, req, msgs, out) {
		return
	}
	a.finish(ctx, out, ConfidenceConversational)
}

// streamCompletion forwards completion chunks as text events. It reports
// whether the stream finished normally; on false the caller must not emit
// further events.
func (a *Answerer) streamCompletion(ctx context.Context, req AnswerRequest, msgs []llm.Message, out chan<- Event) bool {
	stream, err := a.gateway.CompleteStream(ctx, llm.CompletionRequest{
		Provider: req.Provider,
		Model:    req.Model,
		Messages: msgs,
	})
	if err != nil {
		emit(ctx, out, Event{Type: EventError, Err: fmt.Errorf("completion: %w", err)})
		return false
	}
	for chunk := range stream {
		if chunk.Err != nil {
			emit(ctx, out, Event{Type: EventError, Err: chunk.Err})
			return false
		}
		if chunk.Done {
			return true
		}
		if chunk.Content == "" {
			continue
		}
		if !emit(ctx, out, Event{Type: EventText, Text: chunk.Content}) {
			return false
		}
	}
	// Providers close the stream without a done marker when the context is
	// cancelled mid-stream.
	return ctx.Err() == nil
}

func (a *Answerer) finish(ctx context.Context, out chan<- Event, conf Confidence) {
	if !emit(ctx, out, Event{Type: EventConfidence, Confidence: string(conf)}) {
		return
	}
	emit(ctx, out, Event{Type: EventDone})
}

// emit sends unless the consumer is gone.
func emit(ctx context.Context, out chan<- Event, ev Event) bool {
	if ev.Type == EventError {
		slog.Warn("answer stream error", "error", ev.Err)
	}
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func toSource(c indexstore.Candidate) *Source {
	const snippetLen = 200
	snippet := c.Unit.Content
	if len(snippet) > snippetLen {
		cut := snippetLen
		// Back off to a rune boundary so the cut never splits a UTF-8
		// sequence.
		for cut > 0 && !utf8.RuneStart(snippet[cut]) {
			cut--
		}
		snippet = snippet[:cut]
	}
	return &Source{
		UnitID:      c.Unit.ID.String(),
		DocumentID:  c.Unit.DocumentID.String(),
		PageStart:   c.Unit.PageStart,
		PageEnd:     c.Unit.PageEnd,
		ContentType: c.Unit.ContentType,
		Score:       c.Score,
		Snippet:     snippet,
	}
}
