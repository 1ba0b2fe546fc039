package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/insuredocs/docquery/internal/auth"
	"github.com/insuredocs/docquery/internal/conversation"
	"github.com/insuredocs/docquery/internal/models"
	"github.com/insuredocs/docquery/internal/rag"
)

type fakeDocs struct {
	doc *models.Document
}

func (f *fakeDocs) Get(ctx context.Context, tenantID, id uuid.UUID) (*models.Document, error) {
	if f.doc == nil || f.doc.ID != id || f.doc.TenantID != tenantID {
		return nil, models.ErrDocumentNotFound
	}
	return f.doc, nil
}

type fakeConversations struct {
	conv    *conversation.Conversation
	appends []models.Message
}

func (f *fakeConversations) Create(ctx context.Context, tenantID uuid.UUID, documentID *uuid.UUID) (*conversation.Conversation, error) {
	return f.conv, nil
}

func (f *fakeConversations) Get(ctx context.Context, tenantID, id uuid.UUID) (*conversation.Conversation, error) {
	return f.conv, nil
}

func (f *fakeConversations) Append(ctx context.Context, conversationID uuid.UUID, role, content string) (*models.Message, error) {
	msg := models.Message{ConversationID: conversationID, Role: role, Content: content}
	f.appends = append(f.appends, msg)
	return &msg, nil
}

func (f *fakeConversations) Recent(ctx context.Context, conversationID uuid.UUID, n int) ([]models.Message, error) {
	return nil, nil
}

// scriptedAnswerer replays a fixed event sequence and records the request it
// was handed.
type scriptedAnswerer struct {
	events []rag.Event
	got    rag.AnswerRequest
}

func (s *scriptedAnswerer) Answer(ctx context.Context, req rag.AnswerRequest) <-chan rag.Event {
	s.got = req
	out := make(chan rag.Event, len(s.events))
	for _, ev := range s.events {
		out <- ev
	}
	close(out)
	return out
}

func newQueryFixture(doc *models.Document, events []rag.Event, structuredSchema int) (*QueryHandler, *fakeConversations, *scriptedAnswerer) {
	convs := &fakeConversations{conv: &conversation.Conversation{ID: uuid.New(), TenantID: doc.TenantID}}
	answerer := &scriptedAnswerer{events: events}
	h := NewQueryHandler(&fakeDocs{doc: doc}, convs, answerer, 10, structuredSchema)
	return h, convs, answerer
}

func postQuery(t *testing.T, h *QueryHandler, tenantID, docID uuid.UUID) *httptest.ResponseRecorder {
	t.Helper()
	body := `{"document_id":"` + docID.String() + `","query":"what is the deductible?"}`
	req := httptest.NewRequest("POST", "/api/v1/query", strings.NewReader(body))
	req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{TenantID: tenantID, UserID: uuid.New()}))
	rec := httptest.NewRecorder()
	h.Query(rec, req)
	return rec
}

func readyDoc(structuredSchema int) *models.Document {
	return &models.Document{
		ID:               uuid.New(),
		TenantID:         uuid.New(),
		Status:           models.DocStatusReady,
		StructuredData:   json.RawMessage(`{"policy_number":"HX-2291-A"}`),
		StructuredSchema: structuredSchema,
	}
}

func doneEvents() []rag.Event {
	return []rag.Event{
		{Type: rag.EventText, Text: "The deductible is $500."},
		{Type: rag.EventConfidence, Confidence: "high"},
		{Type: rag.EventDone},
	}
}

func TestQueryPassesStructuredOnSchemaMatch(t *testing.T) {
	doc := readyDoc(3)
	h, _, answerer := newQueryFixture(doc, doneEvents(), 3)

	postQuery(t, h, doc.TenantID, doc.ID)

	if len(answerer.got.Structured) == 0 {
		t.Error("structured payload dropped despite matching schema version")
	}
}

func TestQueryDropsStaleStructuredData(t *testing.T) {
	// Document extracted under schema 2, pipeline now at 3: the stale
	// payload must not reach the prompt until the document is reprocessed.
	doc := readyDoc(2)
	h, _, answerer := newQueryFixture(doc, doneEvents(), 3)

	postQuery(t, h, doc.TenantID, doc.ID)

	if answerer.got.Structured != nil {
		t.Errorf("stale structured payload passed through: %s", answerer.got.Structured)
	}
	if answerer.got.DocumentID != doc.ID {
		t.Errorf("answer request document = %s, want %s", answerer.got.DocumentID, doc.ID)
	}
}

func TestQueryPersistsCompletedAnswer(t *testing.T) {
	doc := readyDoc(1)
	h, convs, _ := newQueryFixture(doc, doneEvents(), 1)

	postQuery(t, h, doc.TenantID, doc.ID)

	if len(convs.appends) != 2 {
		t.Fatalf("got %d persisted messages, want user + assistant", len(convs.appends))
	}
	if convs.appends[1].Role != models.RoleAssistant || convs.appends[1].Content != "The deductible is $500." {
		t.Errorf("assistant message = %+v", convs.appends[1])
	}
}

func TestQuerySkipsPersistingPartialAnswerOnError(t *testing.T) {
	doc := readyDoc(1)
	events := []rag.Event{
		{Type: rag.EventText, Text: "The deductible is"},
		{Type: rag.EventError, Err: models.ErrStreamTimeout},
	}
	h, convs, _ := newQueryFixture(doc, events, 1)

	rec := postQuery(t, h, doc.TenantID, doc.ID)

	for _, msg := range convs.appends {
		if msg.Role == models.RoleAssistant {
			t.Errorf("partial answer persisted as assistant message: %q", msg.Content)
		}
	}
	if !strings.Contains(rec.Body.String(), "event: error") {
		t.Errorf("error event not streamed, body: %s", rec.Body.String())
	}
}
