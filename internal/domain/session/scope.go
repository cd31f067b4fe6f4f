package session

import (
	"context"
	"slices"
	"sync"

	"jan-server/services/chat-api/internal/domain/conversation"
	"jan-server/services/chat-api/internal/domain/persistence"
	"jan-server/services/chat-api/internal/domain/turn"
	"jan-server/services/chat-api/internal/utils/platformerrors"
)

// Store is the persistence surface a session needs.
type Store interface {
	Persist(ctx context.Context, rec persistence.TurnRecord, refresher persistence.ListRefresher) persistence.PersistReport
	DeleteConversation(ctx context.Context, id string) error
	ListConversations(ctx context.Context, ownerID *string) ([]*conversation.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]conversation.Message, error)
}

// scope restricts a session to the conversations its identity may see.
// Owners see everything stored under their id; an anonymous session only
// sees conversations it created itself.
type scope struct {
	store    Store
	identity turn.Identity

	mu    sync.Mutex
	known map[string]struct{}
}

func newScope(store Store, identity turn.Identity) *scope {
	return &scope{store: store, identity: identity, known: make(map[string]struct{})}
}

func (s *scope) remember(id string) {
	s.mu.Lock()
	s.known[id] = struct{}{}
	s.mu.Unlock()
}

func (s *scope) forget(id string) {
	s.mu.Lock()
	delete(s.known, id)
	s.mu.Unlock()
}

func (s *scope) isKnown(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.known[id]
	return ok
}

// visible reports whether id belongs to the identity, consulting the store
// for owners when the id has not been seen yet.
func (s *scope) visible(ctx context.Context, id string) (bool, error) {
	if s.isKnown(id) {
		return true, nil
	}
	if s.identity.Anonymous() {
		return false, nil
	}
	if _, err := s.ListConversations(ctx, s.identity.OwnerID); err != nil {
		return false, err
	}
	return s.isKnown(id), nil
}

func (s *scope) Persist(ctx context.Context, rec persistence.TurnRecord, refresher persistence.ListRefresher) persistence.PersistReport {
	s.remember(rec.ConversationID)
	return s.store.Persist(ctx, rec, refresher)
}

func (s *scope) DeleteConversation(ctx context.Context, id string) error {
	ok, err := s.visible(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return notFound(ctx, id)
	}
	if err := s.store.DeleteConversation(ctx, id); err != nil {
		return err
	}
	s.forget(id)
	return nil
}

func (s *scope) ListConversations(ctx context.Context, ownerID *string) ([]*conversation.Conversation, error) {
	convs, err := s.store.ListConversations(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if !s.identity.Anonymous() {
		for _, c := range convs {
			s.remember(c.ID)
		}
		return convs, nil
	}
	return slices.DeleteFunc(convs, func(c *conversation.Conversation) bool {
		return !s.isKnown(c.ID)
	}), nil
}

func (s *scope) ListMessages(ctx context.Context, conversationID string) ([]conversation.Message, error) {
	ok, err := s.visible(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound(ctx, conversationID)
	}
	return s.store.ListMessages(ctx, conversationID)
}

func notFound(ctx context.Context, id string) error {
	return platformerrors.NewErrorWithContext(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound,
		"conversation not found", conversation.ErrNotFound, "session.conversation_not_found",
		map[string]any{"conversation_id": id})
}
