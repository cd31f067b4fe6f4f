package conversation

import (
	"context"
	"errors"
	"strings"
	"time"
)

// DefaultTitle is the title every conversation starts with until one is derived.
const DefaultTitle = "Untitled Conversation"

// ErrNotFound is returned by repositories when a conversation does not exist.
var ErrNotFound = errors.New("conversation not found")

// ===============================================
// Conversation Types
// ===============================================

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageStatus is transient view state; it is never persisted.
type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "pending"
	MessageStatusStreaming MessageStatus = "streaming"
	MessageStatusComplete  MessageStatus = "complete"
	MessageStatusError     MessageStatus = "error"
)

type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	OwnerID   *string   `json:"owner_id,omitempty"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasDefaultTitle reports whether no title has been derived yet.
func (c *Conversation) HasDefaultTitle() bool {
	return c.Title == "" || c.Title == DefaultTitle
}

type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	Role           Role          `json:"role"`
	Content        string        `json:"content"`
	Model          string        `json:"model,omitempty"`
	Status         MessageStatus `json:"status,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// IsUser reports whether the message was authored by the user.
func (m Message) IsUser() bool { return m.Role == RoleUser }

// IsAssistant reports whether the message was produced by the model.
func (m Message) IsAssistant() bool { return m.Role == RoleAssistant }

// ===============================================
// Transcript helpers
// ===============================================

// CloneMessages returns an independent copy of msgs; nil stays nil.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// LastUserIndex returns the index of the most recent user message or -1.
func LastUserIndex(msgs []Message) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].IsUser() {
			return i
		}
	}
	return -1
}

// IndexOf returns the position of the message with id or -1.
func IndexOf(msgs []Message, id string) int {
	for i := range msgs {
		if msgs[i].ID == id {
			return i
		}
	}
	return -1
}

// IsBlank reports whether s has no visible content.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// ===============================================
// Conversation Repository
// ===============================================

type Repository interface {
	// FindConversation returns ErrNotFound when the id is unknown.
	FindConversation(ctx context.Context, id string) (*Conversation, error)
	// CreateConversation must tolerate a duplicate id without failing.
	CreateConversation(ctx context.Context, conv *Conversation) error
	TouchConversation(ctx context.Context, id string, model string) error
	UpdateTitle(ctx context.Context, id string, title string) error
	ListConversations(ctx context.Context, ownerID *string) ([]*Conversation, error)
	DeleteConversation(ctx context.Context, id string) error

	InsertMessage(ctx context.Context, msg *Message) error
	DeleteMessage(ctx context.Context, conversationID string, messageID string) error
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
}
