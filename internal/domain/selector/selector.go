// Package selector mirrors the conversation a client is looking at.
package selector

import (
	"context"
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"jan-server/services/chat-api/internal/domain/conversation"
)

// DegradedTitle replaces the title when a conversation fails to load.
const DegradedTitle = "Unable to load conversation"

var ErrEmptyConversationID = errors.New("conversation id is required")

// Loader reads conversations and their transcripts.
type Loader interface {
	ListMessages(ctx context.Context, conversationID string) ([]conversation.Message, error)
	ListConversations(ctx context.Context, ownerID *string) ([]*conversation.Conversation, error)
}

// View is what the client currently sees.
type View struct {
	ConversationID string                 `json:"conversation_id"`
	Title          string                 `json:"title"`
	Messages       []conversation.Message `json:"messages"`
}

func (v View) clone() View {
	v.Messages = conversation.CloneMessages(v.Messages)
	return v
}

// Selector owns the active view, a transcript cache and the conversation list.
type Selector struct {
	loader Loader
	cache  *lru.Cache
	group  singleflight.Group
	log    zerolog.Logger

	mu            sync.Mutex
	view          View
	loading       map[string]int
	conversations []conversation.Conversation
}

func New(loader Loader, cacheSize int, log zerolog.Logger) (*Selector, error) {
	if cacheSize <= 0 {
		cacheSize = 32
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create transcript cache: %w", err)
	}
	return &Selector{
		loader:  loader,
		cache:   cache,
		log:     log.With().Str("component", "selector").Logger(),
		view:    View{Title: conversation.DefaultTitle},
		loading: make(map[string]int),
	}, nil
}

// Select makes id the active conversation and reloads its transcript. A
// cached transcript is shown while the load runs; concurrent loads of the
// same id share one fetch.
func (s *Selector) Select(ctx context.Context, id string) error {
	if id == "" {
		return ErrEmptyConversationID
	}

	s.mu.Lock()
	s.view = View{ConversationID: id, Title: s.titleLocked(id)}
	if cached, ok := s.cache.Get(id); ok {
		s.view.Messages = conversation.CloneMessages(cached.([]conversation.Message))
	}
	s.loading[id]++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.loading[id]--; s.loading[id] <= 0 {
			delete(s.loading, id)
		}
		s.mu.Unlock()
	}()

	result, err, shared := s.group.Do(id, func() (interface{}, error) {
		// joined callers must not inherit the first caller's cancellation
		msgs, err := s.loader.ListMessages(context.WithoutCancel(ctx), id)
		if err != nil {
			return nil, err
		}
		if msgs == nil {
			msgs = []conversation.Message{}
		}
		return msgs, nil
	})
	if shared {
		s.log.Debug().Str("conversation_id", id).Msg("joined in-flight conversation load")
	}

	if err != nil {
		s.cache.Remove(id)
		s.mu.Lock()
		if s.view.ConversationID == id {
			s.view.Messages = []conversation.Message{}
			s.view.Title = DegradedTitle
		}
		s.mu.Unlock()
		s.log.Warn().Err(err).Str("conversation_id", id).Msg("failed to load conversation")
		return fmt.Errorf("load conversation %s: %w", id, err)
	}

	msgs := result.([]conversation.Message)
	s.cache.Add(id, conversation.CloneMessages(msgs))

	s.mu.Lock()
	// the user may have moved on while we were loading
	if s.view.ConversationID == id {
		s.view.Messages = conversation.CloneMessages(msgs)
	}
	s.mu.Unlock()
	return nil
}

func (s *Selector) titleLocked(id string) string {
	for _, c := range s.conversations {
		if c.ID == id && c.Title != "" {
			return c.Title
		}
	}
	return conversation.DefaultTitle
}

// Loading reports whether the active conversation has a load in flight.
func (s *Selector) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.ConversationID != "" && s.loading[s.view.ConversationID] > 0
}

// Snapshot returns a copy of the active view.
func (s *Selector) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.clone()
}

// ActiveID returns the active conversation id, empty for a fresh conversation.
func (s *Selector) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.ConversationID
}

// Reset clears the view for a new, not yet persisted conversation.
func (s *Selector) Reset() {
	s.mu.Lock()
	s.view = View{Title: conversation.DefaultTitle}
	s.mu.Unlock()
}

// Adopt assigns id to the active view when it has none and returns the id in effect.
func (s *Selector) Adopt(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.view.ConversationID == "" {
		s.view.ConversationID = id
	}
	return s.view.ConversationID
}

// Update runs fn against the live view under the selector lock. fn must not block.
func (s *Selector) Update(fn func(v *View)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.view)
}

// UpdateIdle is Update, except that fn is skipped and false returned while
// the active conversation is loading.
func (s *Selector) UpdateIdle(fn func(v *View)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.view.ConversationID != "" && s.loading[s.view.ConversationID] > 0 {
		return false
	}
	fn(&s.view)
	return true
}

// Store replaces the cached transcript for id.
func (s *Selector) Store(id string, msgs []conversation.Message) {
	if msgs == nil {
		msgs = []conversation.Message{}
	}
	s.cache.Add(id, conversation.CloneMessages(msgs))
}

// Cached returns the cached transcript for id.
func (s *Selector) Cached(id string) ([]conversation.Message, bool) {
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, false
	}
	return conversation.CloneMessages(v.([]conversation.Message)), true
}

// Evict drops the cached transcript for id.
func (s *Selector) Evict(id string) {
	s.cache.Remove(id)
}

// Discard forgets a deleted conversation everywhere. It reports whether it was active.
func (s *Selector) Discard(id string) bool {
	s.cache.Remove(id)

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.conversations[:0]
	for _, c := range s.conversations {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	s.conversations = kept

	if s.view.ConversationID != id {
		return false
	}
	s.view = View{Title: conversation.DefaultTitle}
	return true
}

// ApplyTitle records a derived title. Later calls win.
func (s *Selector) ApplyTitle(id string, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.view.ConversationID == id {
		s.view.Title = title
	}
	for i := range s.conversations {
		if s.conversations[i].ID == id {
			s.conversations[i].Title = title
		}
	}
}

// RefreshConversations reloads the conversation list for ownerID.
func (s *Selector) RefreshConversations(ctx context.Context, ownerID *string) error {
	convs, err := s.loader.ListConversations(ctx, ownerID)
	if err != nil {
		return err
	}
	list := make([]conversation.Conversation, 0, len(convs))
	for _, c := range convs {
		if c != nil {
			list = append(list, *c)
		}
	}

	s.mu.Lock()
	s.conversations = list
	if id := s.view.ConversationID; id != "" && s.view.Title != DegradedTitle {
		s.view.Title = s.titleLocked(id)
	}
	s.mu.Unlock()
	return nil
}

// Conversations returns the last loaded conversation list.
func (s *Selector) Conversations() []conversation.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]conversation.Conversation, len(s.conversations))
	copy(out, s.conversations)
	return out
}
