package cache

import (
	"context"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"jan-server/services/chat-api/internal/domain/title"
)

// TitleClaimer takes a short-lived Redis lock per conversation. The lock is
// left to expire so later attempts from other replicas keep failing until then.
type TitleClaimer struct {
	rs  *redsync.Redsync
	ttl time.Duration
	log zerolog.Logger
}

var _ title.Claimer = (*TitleClaimer)(nil)

func NewTitleClaimer(client redis.UniversalClient, ttl time.Duration, log zerolog.Logger) *TitleClaimer {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &TitleClaimer{
		rs:  redsync.New(goredis.NewPool(client)),
		ttl: ttl,
		log: log.With().Str("component", "title-claimer").Logger(),
	}
}

// Claim reports false when the lock is held elsewhere or cannot be taken.
func (c *TitleClaimer) Claim(ctx context.Context, conversationID string) bool {
	mutex := c.rs.NewMutex(keyPrefix+"title:"+conversationID,
		redsync.WithExpiry(c.ttl),
		redsync.WithTries(1),
	)
	if err := mutex.TryLockContext(ctx); err != nil {
		c.log.Debug().Err(err).Str("conversation_id", conversationID).Msg("title lock not acquired")
		return false
	}
	return true
}
