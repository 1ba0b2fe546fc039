package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is one turn of a conversation. The query engine only ever reads a
// bounded recent window; transcript persistence belongs to the caller.
type Message struct {
	ID             uuid.UUID `json:"id" db:"id"`
	ConversationID uuid.UUID `json:"conversation_id" db:"conversation_id"`
	Role           string    `json:"role" db:"role"`
	Content        string    `json:"content" db:"content"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
