package dbschema

import (
	"time"

	"jan-server/services/chat-api/internal/domain/conversation"
)

// Conversation represents the database schema for conversations
type Conversation struct {
	ID        string    `gorm:"type:varchar(64);primaryKey"`
	Title     string    `gorm:"type:varchar(256);not null"`
	OwnerID   *string   `gorm:"type:varchar(128);index:idx_conversations_owner_updated"`
	Model     string    `gorm:"type:varchar(128);not null;default:''"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null;index:idx_conversations_owner_updated"`
}

// Message represents the database schema for a persisted chat message.
// Status is view-only state and has no column.
type Message struct {
	ID             string    `gorm:"type:varchar(64);primaryKey"`
	Seq            int64     `gorm:"->"`
	ConversationID string    `gorm:"type:varchar(64);index;not null"`
	Role           string    `gorm:"type:varchar(20);not null"`
	Content        string    `gorm:"type:text;not null"`
	Model          string    `gorm:"type:varchar(128);not null;default:''"`
	CreatedAt      time.Time `gorm:"not null"`
}

func NewSchemaConversation(c *conversation.Conversation) *Conversation {
	return &Conversation{
		ID:        c.ID,
		Title:     c.Title,
		OwnerID:   c.OwnerID,
		Model:     c.Model,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func (c *Conversation) EtoD() *conversation.Conversation {
	return &conversation.Conversation{
		ID:        c.ID,
		Title:     c.Title,
		OwnerID:   c.OwnerID,
		Model:     c.Model,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func NewSchemaMessage(m *conversation.Message) *Message {
	return &Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Role:           string(m.Role),
		Content:        m.Content,
		Model:          m.Model,
		CreatedAt:      m.CreatedAt,
	}
}

// EtoD returns the domain message; loaded messages are always complete.
func (m *Message) EtoD() conversation.Message {
	return conversation.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Role:           conversation.Role(m.Role),
		Content:        m.Content,
		Model:          m.Model,
		Status:         conversation.MessageStatusComplete,
		CreatedAt:      m.CreatedAt,
	}
}
