// Package memstore is a process-local conversation.Repository used when no
// database is configured.
package memstore

import (
	"context"
	"slices"
	"sync"
	"time"

	"jan-server/services/chat-api/internal/domain/conversation"
)

type Store struct {
	mu            sync.RWMutex
	conversations map[string]*conversation.Conversation
	messages      map[string][]conversation.Message
	now           func() time.Time
}

var _ conversation.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		conversations: make(map[string]*conversation.Conversation),
		messages:      make(map[string][]conversation.Message),
		now:           time.Now,
	}
}

func (s *Store) FindConversation(_ context.Context, id string) (*conversation.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, conversation.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) CreateConversation(_ context.Context, conv *conversation.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.conversations[conv.ID]; exists {
		return nil
	}
	cp := *conv
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now()
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = cp.CreatedAt
	}
	if cp.Title == "" {
		cp.Title = conversation.DefaultTitle
	}
	s.conversations[conv.ID] = &cp
	return nil
}

func (s *Store) TouchConversation(_ context.Context, id string, model string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return conversation.ErrNotFound
	}
	c.UpdatedAt = s.now()
	if model != "" {
		c.Model = model
	}
	return nil
}

func (s *Store) UpdateTitle(_ context.Context, id string, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return conversation.ErrNotFound
	}
	c.Title = title
	return nil
}

// ListConversations returns the most recently updated conversations first.
func (s *Store) ListConversations(_ context.Context, ownerID *string) ([]*conversation.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*conversation.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		if !sameOwner(c.OwnerID, ownerID) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *conversation.Conversation) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out, nil
}

func (s *Store) DeleteConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, id)
	delete(s.messages, id)
	return nil
}

func (s *Store) InsertMessage(_ context.Context, msg *conversation.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *msg
	cp.Status = ""
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now()
	}
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], cp)
	return nil
}

func (s *Store) DeleteMessage(_ context.Context, conversationID string, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[conversationID] = slices.DeleteFunc(s.messages[conversationID], func(m conversation.Message) bool {
		return m.ID == messageID
	})
	return nil
}

// ListMessages returns messages in insertion order marked complete.
func (s *Store) ListMessages(_ context.Context, conversationID string) ([]conversation.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.messages[conversationID]
	out := make([]conversation.Message, len(stored))
	for i, m := range stored {
		m.Status = conversation.MessageStatusComplete
		out[i] = m
	}
	return out, nil
}

func sameOwner(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
