package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"jan-server/services/chat-api/internal/domain/quota"
)

// QuotaStore keeps quota counters in Redis so every replica sees the same
// usage for an identity.
type QuotaStore struct {
	client redis.UniversalClient
}

var _ quota.CounterStore = (*QuotaStore)(nil)

func NewQuotaStore(client redis.UniversalClient) *QuotaStore {
	return &QuotaStore{client: client}
}

func (s *QuotaStore) Count(ctx context.Context, key string) (int, error) {
	n, err := s.client.Get(ctx, keyPrefix+key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Increment bumps the counter and pins its expiry to the window end.
func (s *QuotaStore) Increment(ctx context.Context, key string, expireAt time.Time) (int, error) {
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, keyPrefix+key)
		pipe.ExpireAt(ctx, keyPrefix+key, expireAt)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(incr.Val()), nil
}
