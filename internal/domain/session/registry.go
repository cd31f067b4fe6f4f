// Package session keeps one turn orchestrator per connected client.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"

	"jan-server/services/chat-api/internal/domain/quota"
	"jan-server/services/chat-api/internal/domain/selector"
	"jan-server/services/chat-api/internal/domain/turn"
	"jan-server/services/chat-api/internal/utils/idgen"
	"jan-server/services/chat-api/internal/utils/platformerrors"
)

var ErrSessionNotFound = errors.New("session not found")

// Session binds an identity to its orchestrator.
type Session struct {
	ID           string
	Identity     turn.Identity
	Orchestrator *turn.Orchestrator
	CreatedAt    time.Time

	lastUsed atomic.Int64
}

// Touch marks the session as used now.
func (s *Session) Touch() {
	s.lastUsed.Store(time.Now().UnixNano())
}

func (s *Session) LastUsed() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

// BelongsTo reports whether identity may drive this session.
func (s *Session) BelongsTo(identity turn.Identity) bool {
	if s.Identity.Anonymous() != identity.Anonymous() {
		return false
	}
	if identity.Anonymous() {
		return s.Identity.AnonymousKey == identity.AnonymousKey
	}
	return *s.Identity.OwnerID == *identity.OwnerID
}

// Dependencies are shared by every session a Registry creates.
type Dependencies struct {
	Store      Store
	Provider   turn.AIProvider
	Titles     turn.TitleScheduler
	Limiter    *quota.Limiter
	Classifier *turn.Classifier
	Observer   turn.Observer
	Logger     zerolog.Logger
}

type Config struct {
	Capacity  int
	CacheSize int
	Turn      turn.Config
	// OnChange receives the session count after every add or removal.
	OnChange func(count int)
}

// Registry is a bounded set of sessions; the least recently used one is
// dropped when full. A dropped session's in-flight turn still completes.
type Registry struct {
	deps  Dependencies
	cfg   Config
	cache *lru.Cache
	log   zerolog.Logger
}

func NewRegistry(deps Dependencies, cfg Config) (*Registry, error) {
	if deps.Store == nil || deps.Provider == nil {
		return nil, errors.New("session store and provider are required")
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1024
	}
	r := &Registry{
		deps: deps,
		cfg:  cfg,
		log:  deps.Logger.With().Str("component", "session-registry").Logger(),
	}
	cache, err := lru.NewWithEvict(cfg.Capacity, func(key, _ interface{}) {
		r.log.Debug().Str("session_id", key.(string)).Msg("session evicted")
	})
	if err != nil {
		return nil, fmt.Errorf("create session cache: %w", err)
	}
	r.cache = cache
	return r, nil
}

// Create builds a fresh orchestrator for identity.
func (r *Registry) Create(identity turn.Identity) (*Session, error) {
	id, err := idgen.NewSessionID()
	if err != nil {
		return nil, err
	}

	scope := newScope(r.deps.Store, identity)
	sel, err := selector.New(scope, r.cfg.CacheSize, r.deps.Logger)
	if err != nil {
		return nil, err
	}

	var enforcer quota.Enforcer = quota.Unlimited{}
	if r.deps.Limiter != nil && identity.Anonymous() {
		enforcer = r.deps.Limiter.For(identity.AnonymousKey)
	}

	orch := turn.NewOrchestrator(identity, turn.Dependencies{
		Provider:    r.deps.Provider,
		Persistence: scope,
		Titles:      r.deps.Titles,
		Quota:       enforcer,
		Selector:    sel,
		Classifier:  r.deps.Classifier,
		Observer:    r.deps.Observer,
		Logger:      r.deps.Logger.With().Str("session_id", id).Logger(),
	}, r.cfg.Turn)

	s := &Session{ID: id, Identity: identity, Orchestrator: orch, CreatedAt: time.Now()}
	s.Touch()
	r.cache.Add(id, s)
	r.changed()
	return s, nil
}

// Get returns the session if it exists and belongs to identity.
func (r *Registry) Get(ctx context.Context, id string, identity turn.Identity) (*Session, error) {
	v, ok := r.cache.Get(id)
	if !ok {
		return nil, sessionNotFound(ctx, id)
	}
	s := v.(*Session)
	if !s.BelongsTo(identity) {
		return nil, sessionNotFound(ctx, id)
	}
	s.Touch()
	return s, nil
}

func (r *Registry) Remove(id string) {
	if r.cache.Remove(id) {
		r.changed()
	}
}

func (r *Registry) Len() int {
	return r.cache.Len()
}

// PruneIdle drops sessions unused for longer than maxIdle that are not
// generating, and returns how many were dropped.
func (r *Registry) PruneIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	removed := 0
	for _, key := range r.cache.Keys() {
		v, ok := r.cache.Peek(key)
		if !ok {
			continue
		}
		s := v.(*Session)
		if s.Orchestrator.Generating() || s.LastUsed().After(cutoff) {
			continue
		}
		if r.cache.Remove(key) {
			removed++
		}
	}
	if removed > 0 {
		r.changed()
	}
	return removed
}

func (r *Registry) changed() {
	if r.cfg.OnChange != nil {
		r.cfg.OnChange(r.cache.Len())
	}
}

func sessionNotFound(ctx context.Context, id string) error {
	return platformerrors.NewErrorWithContext(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound,
		"session not found", ErrSessionNotFound, "session.not_found", map[string]any{"session_id": id})
}
