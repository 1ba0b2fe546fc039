package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/insuredocs/docquery/internal/auth"
	"github.com/insuredocs/docquery/internal/conversation"
	"github.com/insuredocs/docquery/internal/models"
	"github.com/insuredocs/docquery/internal/rag"
)

// The query path touches each collaborator through a narrow surface so it
// can be exercised without a database behind it.
type documentGetter interface {
	Get(ctx context.Context, tenantID, id uuid.UUID) (*models.Document, error)
}

type conversationStore interface {
	Create(ctx context.Context, tenantID uuid.UUID, documentID *uuid.UUID) (*conversation.Conversation, error)
	Get(ctx context.Context, tenantID, id uuid.UUID) (*conversation.Conversation, error)
	Append(ctx context.Context, conversationID uuid.UUID, role, content string) (*models.Message, error)
	Recent(ctx context.Context, conversationID uuid.UUID, n int) ([]models.Message, error)
}

type answerStreamer interface {
	Answer(ctx context.Context, req rag.AnswerRequest) <-chan rag.Event
}

type QueryHandler struct {
	docs             documentGetter
	conversations    conversationStore
	answerer         answerStreamer
	historyWindow    int
	structuredSchema int
}

func NewQueryHandler(docs documentGetter, conversations conversationStore, answerer answerStreamer, historyWindow, structuredSchema int) *QueryHandler {
	return &QueryHandler{
		docs:             docs,
		conversations:    conversations,
		answerer:         answerer,
		historyWindow:    historyWindow,
		structuredSchema: structuredSchema,
	}
}

type queryRequest struct {
	DocumentID     uuid.UUID  `json:"document_id"`
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
	Query          string     `json:"query"`
	Provider       string     `json:"provider,omitempty"`
	Model          string     `json:"model,omitempty"`
}

// Query answers a question about one document, streaming the response as
// server-sent events. The conversation transcript is persisted as a side
// effect; a missing conversation_id starts a new one.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query required")
		return
	}

	doc, err := h.docs.Get(r.Context(), id.TenantID, req.DocumentID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if doc.Status != models.DocStatusReady {
		writeError(w, http.StatusConflict, "document is not ready for querying")
		return
	}

	conv, history, err := h.resolveConversation(r, id.TenantID, doc.ID, req.ConversationID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	sse, ok := newSSEWriter(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	sse.send("conversation", map[string]string{"conversation_id": conv.ID.String()})

	if _, err := h.conversations.Append(r.Context(), conv.ID, models.RoleUser, req.Query); err != nil {
		slog.Warn("persist user message failed", "conversation_id", conv.ID, "error", err)
	}

	// Structured fields extracted under an older schema may be missing or
	// shaped differently; only a version match makes them trustworthy.
	var structured json.RawMessage
	if doc.StructuredSchema == h.structuredSchema {
		structured = doc.StructuredData
	}

	events := h.answerer.Answer(r.Context(), rag.AnswerRequest{
		DocumentID: doc.ID,
		Query:      req.Query,
		History:    history,
		Structured: structured,
		Provider:   req.Provider,
		Model:      req.Model,
	})

	var answer strings.Builder
	var streamFailed bool
	for ev := range events {
		var err error
		switch ev.Type {
		case rag.EventText:
			answer.WriteString(ev.Text)
			err = sse.send("text", map[string]string{"text": ev.Text})
		case rag.EventSource:
			err = sse.send("source", ev.Source)
		case rag.EventConfidence:
			err = sse.send("confidence", map[string]string{"confidence": ev.Confidence})
		case rag.EventDone:
			err = sse.send("done", map[string]bool{"done": true})
		case rag.EventError:
			streamFailed = true
			msg, retryable := userFacingError(ev.Err)
			err = sse.send("error", map[string]any{"error": msg, "retryable": retryable})
		}
		if err != nil {
			// Client went away; the answerer stops via request context.
			return
		}
	}

	// A stream that ended in an error produced at most a partial answer;
	// persisting it would replay the fragment as settled history.
	if answer.Len() > 0 && !streamFailed {
		if _, err := h.conversations.Append(r.Context(), conv.ID, models.RoleAssistant, answer.String()); err != nil {
			slog.Warn("persist assistant message failed", "conversation_id", conv.ID, "error", err)
		}
	}
}

// userFacingError maps completion failures to messages the interface can
// show, with a retry affordance where retrying can help. Rate limits get no
// retry button; hammering the provider makes them worse.
func userFacingError(err error) (string, bool) {
	switch {
	case errors.Is(err, models.ErrStreamTimeout):
		return "The answer timed out. Please try again.", true
	case errors.Is(err, models.ErrRateLimited):
		return "We're handling a lot of requests right now. Please wait a moment.", false
	default:
		return "Something went wrong generating the answer. Please try again.", true
	}
}

func (h *QueryHandler) resolveConversation(r *http.Request, tenantID, docID uuid.UUID, convID *uuid.UUID) (*conversation.Conversation, []models.Message, error) {
	ctx := r.Context()
	if convID == nil {
		conv, err := h.conversations.Create(ctx, tenantID, &docID)
		return conv, nil, err
	}
	conv, err := h.conversations.Get(ctx, tenantID, *convID)
	if err != nil {
		return nil, nil, err
	}
	history, err := h.conversations.Recent(ctx, conv.ID, h.historyWindow)
	if err != nil {
		return nil, nil, err
	}
	return conv, history, nil
}
