package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/insuredocs/docquery/internal/models"
)

var ErrNotFound = errors.New("conversation not found")

// Conversation groups a sequence of question/answer turns about one document.
type Conversation struct {
	ID         uuid.UUID  `json:"id"`
	TenantID   uuid.UUID  `json:"tenant_id"`
	DocumentID *uuid.UUID `json:"document_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type Service struct {
	db *pgxpool.Pool
}

func NewService(db *pgxpool.Pool) *Service {
	return &Service{db: db}
}

func (s *Service) Create(ctx context.Context, tenantID uuid.UUID, documentID *uuid.UUID) (*Conversation, error) {
	c := &Conversation{
		ID:         uuid.New(),
		TenantID:   tenantID,
		DocumentID: documentID,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO conversations (id, tenant_id, document_id, created_at) VALUES ($1, $2, $3, $4)`,
		c.ID, c.TenantID, c.DocumentID, c.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, tenantID, id uuid.UUID) (*Conversation, error) {
	var c Conversation
	err := s.db.QueryRow(ctx,
		`SELECT id, tenant_id, document_id, created_at FROM conversations WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	).Scan(&c.ID, &c.TenantID, &c.DocumentID, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &c, nil
}

func (s *Service) Append(ctx context.Context, conversationID uuid.UUID, role, content string) (*models.Message, error) {
	m := &models.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.ConversationID, m.Role, m.Content, m.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return m, nil
}

// Recent returns the last n messages in chronological order.
func (s *Service) Recent(ctx context.Context, conversationID uuid.UUID, n int) ([]models.Message, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, conversation_id, role, content, created_at
		 FROM (
		     SELECT id, conversation_id, role, content, created_at
		     FROM messages WHERE conversation_id = $1
		     ORDER BY created_at DESC, id DESC LIMIT $2
		 ) tail
		 ORDER BY created_at ASC, id ASC`,
		conversationID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
