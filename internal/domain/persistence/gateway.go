// Package persistence makes chat turns durable on a best-effort basis.
package persistence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"jan-server/services/chat-api/internal/domain/conversation"
	"jan-server/services/chat-api/internal/domain/retry"
	"jan-server/services/chat-api/internal/utils/platformerrors"
)

// ListRefresher reloads the caller's conversation list after a write.
type ListRefresher interface {
	RefreshConversations(ctx context.Context, ownerID *string) error
}

// Observer receives persistence outcomes; used for metrics.
type Observer interface {
	ObserveWrite(kind string, attempts int, err error)
}

// TurnRecord is everything one finished turn needs written.
type TurnRecord struct {
	ConversationID string
	OwnerID        *string
	Title          string
	Model          string

	// UserMessage is nil for regenerate turns.
	UserMessage *conversation.Message
	// SupersededMessageID is the assistant row a regenerate replaces.
	SupersededMessageID string
	AssistantMessage    *conversation.Message
}

// PersistReport says which writes landed.
type PersistReport struct {
	ConversationEnsured bool
	UserSaved           bool
	AssistantSaved      bool
	AssistantAttempts   int
}

// Gateway wraps a conversation repository with the turn write protocol.
type Gateway struct {
	repo     conversation.Repository
	policy   retry.Policy
	observer Observer
	log      zerolog.Logger

	knownMu sync.RWMutex
	known   map[string]struct{}

	refreshTimeout time.Duration
}

// Option customises a Gateway.
type Option func(*Gateway)

// WithObserver reports write outcomes to o.
func WithObserver(o Observer) Option {
	return func(g *Gateway) { g.observer = o }
}

func NewGateway(repo conversation.Repository, log zerolog.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		repo:           repo,
		policy:         retry.ImmediateRetryPolicy(),
		log:            log.With().Str("component", "persistence").Logger(),
		known:          make(map[string]struct{}),
		refreshTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) observe(kind string, attempts int, err error) {
	if g.observer != nil {
		g.observer.ObserveWrite(kind, attempts, err)
	}
}

func (g *Gateway) isKnown(id string) bool {
	g.knownMu.RLock()
	defer g.knownMu.RUnlock()
	_, ok := g.known[id]
	return ok
}

func (g *Gateway) markKnown(id string) {
	g.knownMu.Lock()
	g.known[id] = struct{}{}
	g.knownMu.Unlock()
}

func (g *Gateway) forget(id string) {
	g.knownMu.Lock()
	delete(g.known, id)
	g.knownMu.Unlock()
}

// EnsureConversation makes sure a record for id exists. Lookup failures fall
// through to create; a create failure is returned for logging only.
func (g *Gateway) EnsureConversation(ctx context.Context, id string, ownerID *string, title string, model string) error {
	if g.isKnown(id) {
		if err := g.repo.TouchConversation(ctx, id, model); err != nil {
			g.log.Debug().Err(err).Str("conversation_id", id).Msg("touch conversation failed")
		}
		return nil
	}

	existing, err := g.repo.FindConversation(ctx, id)
	switch {
	case err == nil && existing != nil:
		g.markKnown(id)
		if model != "" && existing.Model != model {
			if err := g.repo.TouchConversation(ctx, id, model); err != nil {
				g.log.Debug().Err(err).Str("conversation_id", id).Msg("touch conversation failed")
			}
		}
		return nil
	case err != nil && !errors.Is(err, conversation.ErrNotFound):
		g.log.Warn().Err(err).Str("conversation_id", id).Msg("conversation lookup failed, creating")
	}

	if title == "" {
		title = conversation.DefaultTitle
	}
	now := time.Now().UTC()
	createErr := g.repo.CreateConversation(ctx, &conversation.Conversation{
		ID:        id,
		Title:     title,
		OwnerID:   ownerID,
		Model:     model,
		CreatedAt: now,
		UpdatedAt: now,
	})
	g.observe("conversation", 1, createErr)
	if createErr != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, createErr, "create conversation")
	}
	g.markKnown(id)
	return nil
}

// SaveMessage writes msg once.
func (g *Gateway) SaveMessage(ctx context.Context, msg *conversation.Message) error {
	err := g.repo.InsertMessage(ctx, msg)
	g.observe(string(msg.Role), 1, err)
	if err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "save message")
	}
	return nil
}

// saveWithRetry writes msg under the gateway retry policy.
func (g *Gateway) saveWithRetry(ctx context.Context, msg *conversation.Message) (int, error) {
	attempts, err := retry.NewExecutor(g.policy).Execute(ctx, func(ctx context.Context, attempt int) error {
		if attempt > 0 {
			g.log.Debug().Str("message_id", msg.ID).Int("attempt", attempt).Msg("retrying message write")
		}
		return g.repo.InsertMessage(ctx, msg)
	})
	g.observe(string(msg.Role), attempts, err)
	return attempts, err
}

// Persist writes a finished turn: conversation, user message, superseded row
// removal, then the assistant message. Nothing here is transactional and no
// failure aborts later steps. The conversation list reload runs detached.
func (g *Gateway) Persist(ctx context.Context, rec TurnRecord, refresher ListRefresher) PersistReport {
	var report PersistReport
	log := g.log.With().Str("conversation_id", rec.ConversationID).Logger()

	if err := g.EnsureConversation(ctx, rec.ConversationID, rec.OwnerID, rec.Title, rec.Model); err != nil {
		log.Warn().Err(err).Msg("ensure conversation failed, continuing with messages")
	} else {
		report.ConversationEnsured = true
	}

	if rec.UserMessage != nil {
		if err := g.SaveMessage(ctx, rec.UserMessage); err != nil {
			log.Warn().Err(err).Str("message_id", rec.UserMessage.ID).Msg("failed to save user message")
		} else {
			report.UserSaved = true
		}
	}

	if rec.SupersededMessageID != "" {
		if err := g.repo.DeleteMessage(ctx, rec.ConversationID, rec.SupersededMessageID); err != nil {
			log.Debug().Err(err).Str("message_id", rec.SupersededMessageID).Msg("failed to remove superseded reply")
		}
	}

	if rec.AssistantMessage != nil {
		attempts, err := g.saveWithRetry(ctx, rec.AssistantMessage)
		report.AssistantAttempts = attempts
		if err != nil {
			log.Warn().Err(err).Str("message_id", rec.AssistantMessage.ID).Int("attempts", attempts).Msg("failed to save assistant message")
		} else {
			report.AssistantSaved = true
		}
	}

	if refresher != nil {
		g.refreshDetached(rec.OwnerID, refresher)
	}
	return report
}

func (g *Gateway) refreshDetached(ownerID *string, refresher ListRefresher) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), g.refreshTimeout)
		defer cancel()
		if err := refresher.RefreshConversations(ctx, ownerID); err != nil {
			g.log.Debug().Err(err).Msg("conversation list refresh failed")
		}
	}()
}

// ListConversations returns the conversations visible to ownerID.
func (g *Gateway) ListConversations(ctx context.Context, ownerID *string) ([]*conversation.Conversation, error) {
	convs, err := g.repo.ListConversations(ctx, ownerID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "list conversations")
	}
	for _, c := range convs {
		g.markKnown(c.ID)
	}
	return convs, nil
}

// ListMessages returns a conversation's messages in creation order.
func (g *Gateway) ListMessages(ctx context.Context, conversationID string) ([]conversation.Message, error) {
	msgs, err := g.repo.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "list messages")
	}
	return msgs, nil
}

// DeleteConversation removes a conversation and its messages.
func (g *Gateway) DeleteConversation(ctx context.Context, id string) error {
	g.forget(id)
	if err := g.repo.DeleteConversation(ctx, id); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "delete conversation")
	}
	return nil
}

// UpdateTitle stores a derived title.
func (g *Gateway) UpdateTitle(ctx context.Context, id string, title string) error {
	if err := g.repo.UpdateTitle(ctx, id, title); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "update title")
	}
	return nil
}
