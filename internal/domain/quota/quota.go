// Package quota limits how many messages an anonymous identity may send.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"
)

// ErrQuotaExceeded is returned when an anonymous identity is out of messages.
var ErrQuotaExceeded = errors.New("message quota exceeded")

const defaultBucketCapacity = 10000

// Stats is the caller-visible usage summary.
type Stats struct {
	Used           int       `json:"used"`
	Limit          int       `json:"limit"`
	WindowResetAt  time.Time `json:"window_reset_at"`
	BurstRemaining int       `json:"burst_remaining"`
}

// Enforcer gates sends for a single identity.
type Enforcer interface {
	CanSend(ctx context.Context) bool
	// Record counts one message and reports whether it stayed within the limit.
	Record(ctx context.Context) bool
	Stats(ctx context.Context) Stats
}

// CounterStore keeps per-window counters. Keys are unique per window, so a
// window never resets partially.
type CounterStore interface {
	Count(ctx context.Context, key string) (int, error)
	Increment(ctx context.Context, key string, expireAt time.Time) (int, error)
}

// Config controls the daily window and burst bucket. Zero limits disable the
// corresponding check.
type Config struct {
	DailyLimit     int
	BurstPerMinute int
	Location       *time.Location
	BucketCapacity int
	Now            func() time.Time
}

// Limiter hands out per-identity enforcers that share one store.
type Limiter struct {
	cfg     Config
	store   CounterStore
	buckets *lru.Cache
	log     zerolog.Logger
}

// NewLimiter creates a limiter backed by store.
func NewLimiter(cfg Config, store CounterStore, log zerolog.Logger) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("quota store is required")
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.BucketCapacity <= 0 {
		cfg.BucketCapacity = defaultBucketCapacity
	}
	buckets, err := lru.New(cfg.BucketCapacity)
	if err != nil {
		return nil, fmt.Errorf("create burst cache: %w", err)
	}
	return &Limiter{
		cfg:     cfg,
		store:   store,
		buckets: buckets,
		log:     log.With().Str("component", "quota").Logger(),
	}, nil
}

// For returns the enforcer for identity.
func (l *Limiter) For(identity string) Enforcer {
	return &identityEnforcer{limiter: l, identity: identity}
}

// Window returns the start and end of the daily window containing t.
func (l *Limiter) Window(t time.Time) (time.Time, time.Time) {
	local := t.In(l.cfg.Location)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, l.cfg.Location)
	return start, start.AddDate(0, 0, 1)
}

func (l *Limiter) windowKey(identity string, start time.Time) string {
	return fmt.Sprintf("quota:%s:%s", identity, start.Format("20060102"))
}

func (l *Limiter) bucket(identity string) *tokenBucket {
	if v, ok := l.buckets.Get(identity); ok {
		return v.(*tokenBucket)
	}
	b := newTokenBucket(float64(l.cfg.BurstPerMinute), l.cfg.Now())
	// another goroutine may have raced us; keep whichever landed first
	if prev, ok, _ := l.buckets.PeekOrAdd(identity, b); ok {
		return prev.(*tokenBucket)
	}
	return b
}

type identityEnforcer struct {
	limiter  *Limiter
	identity string
}

func (e *identityEnforcer) used(ctx context.Context, now time.Time) (int, time.Time) {
	start, end := e.limiter.Window(now)
	if e.limiter.cfg.DailyLimit <= 0 {
		return 0, end
	}
	count, err := e.limiter.store.Count(ctx, e.limiter.windowKey(e.identity, start))
	if err != nil {
		e.limiter.log.Warn().Err(err).Str("identity", e.identity).Msg("quota store read failed, allowing")
		return 0, end
	}
	return count, end
}

func (e *identityEnforcer) CanSend(ctx context.Context) bool {
	now := e.limiter.cfg.Now()
	if limit := e.limiter.cfg.DailyLimit; limit > 0 {
		if used, _ := e.used(ctx, now); used >= limit {
			return false
		}
	}
	if e.limiter.cfg.BurstPerMinute > 0 {
		return e.limiter.bucket(e.identity).available(now) >= 1
	}
	return true
}

func (e *identityEnforcer) Record(ctx context.Context) bool {
	now := e.limiter.cfg.Now()
	if e.limiter.cfg.BurstPerMinute > 0 {
		e.limiter.bucket(e.identity).take(now)
	}
	limit := e.limiter.cfg.DailyLimit
	if limit <= 0 {
		return true
	}
	start, end := e.limiter.Window(now)
	count, err := e.limiter.store.Increment(ctx, e.limiter.windowKey(e.identity, start), end)
	if err != nil {
		e.limiter.log.Warn().Err(err).Str("identity", e.identity).Msg("quota store increment failed")
		return true
	}
	return count <= limit
}

func (e *identityEnforcer) Stats(ctx context.Context) Stats {
	now := e.limiter.cfg.Now()
	used, resetAt := e.used(ctx, now)
	stats := Stats{
		Used:           used,
		Limit:          e.limiter.cfg.DailyLimit,
		WindowResetAt:  resetAt,
		BurstRemaining: -1,
	}
	if e.limiter.cfg.BurstPerMinute > 0 {
		stats.BurstRemaining = int(e.limiter.bucket(e.identity).available(now))
	}
	return stats
}

// Unlimited is the enforcer used for authenticated identities.
type Unlimited struct{}

func (Unlimited) CanSend(context.Context) bool { return true }
func (Unlimited) Record(context.Context) bool  { return true }
func (Unlimited) Stats(context.Context) Stats  { return Stats{BurstRemaining: -1} }
