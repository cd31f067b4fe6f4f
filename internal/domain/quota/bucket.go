package quota

import (
	"sync"
	"time"
)

// tokenBucket refills continuously up to capacity tokens per minute.
type tokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	lastRefill time.Time
}

func newTokenBucket(perMinute float64, now time.Time) *tokenBucket {
	return &tokenBucket{capacity: perMinute, tokens: perMinute, lastRefill: now}
}

func (b *tokenBucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = min(b.capacity, b.tokens+elapsed*b.capacity/60.0)
		b.lastRefill = now
	}
}

func (b *tokenBucket) available(now time.Time) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill(now)
	return b.tokens
}

func (b *tokenBucket) take(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill(now)
	b.tokens = max(0, b.tokens-1)
}
