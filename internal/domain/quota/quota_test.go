package quota

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(t *testing.T, cfg Config, clock *fakeClock) *Limiter {
	t.Helper()
	cfg.Now = clock.Now
	limiter, err := NewLimiter(cfg, NewMemoryStoreWithClock(clock.Now), zerolog.Nop())
	require.NoError(t, err)
	return limiter
}

func TestEnforcer_DailyLimit(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)}
	limiter := newTestLimiter(t, Config{DailyLimit: 3}, clock)
	ctx := context.Background()
	enforcer := limiter.For("ip:10.0.0.1")

	for i := 0; i < 3; i++ {
		require.True(t, enforcer.CanSend(ctx), "send %d", i)
		assert.True(t, enforcer.Record(ctx))
	}
	assert.False(t, enforcer.CanSend(ctx))

	stats := enforcer.Stats(ctx)
	assert.Equal(t, 3, stats.Used)
	assert.Equal(t, 3, stats.Limit)
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), stats.WindowResetAt)

	// other identities are unaffected
	assert.True(t, limiter.For("ip:10.0.0.2").CanSend(ctx))
}

func TestEnforcer_RecordBeyondLimit(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)}
	limiter := newTestLimiter(t, Config{DailyLimit: 1}, clock)
	enforcer := limiter.For("guest")

	assert.True(t, enforcer.Record(context.Background()))
	assert.False(t, enforcer.Record(context.Background()))
}

func TestEnforcer_WindowResetsAtBoundary(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)}
	limiter := newTestLimiter(t, Config{DailyLimit: 1}, clock)
	ctx := context.Background()
	enforcer := limiter.For("guest")

	enforcer.Record(ctx)
	assert.False(t, enforcer.CanSend(ctx))

	clock.Advance(59 * time.Second)
	assert.False(t, enforcer.CanSend(ctx), "still inside the window")

	clock.Advance(2 * time.Second)
	assert.True(t, enforcer.CanSend(ctx))
	assert.Equal(t, 0, enforcer.Stats(ctx).Used)
}

func TestEnforcer_WindowFollowsLocation(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*60*60)
	clock := &fakeClock{now: time.Date(2026, 3, 10, 16, 0, 0, 0, time.UTC)} // 01:00 on the 11th at UTC+9
	limiter := newTestLimiter(t, Config{DailyLimit: 5, Location: loc}, clock)

	stats := limiter.For("guest").Stats(context.Background())
	assert.True(t, stats.WindowResetAt.Equal(time.Date(2026, 3, 12, 0, 0, 0, 0, loc)))
}

func TestEnforcer_Burst(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	limiter := newTestLimiter(t, Config{DailyLimit: 100, BurstPerMinute: 2}, clock)
	ctx := context.Background()
	enforcer := limiter.For("guest")

	enforcer.Record(ctx)
	enforcer.Record(ctx)
	assert.False(t, enforcer.CanSend(ctx))
	assert.Equal(t, 0, enforcer.Stats(ctx).BurstRemaining)

	clock.Advance(30 * time.Second)
	assert.True(t, enforcer.CanSend(ctx))
}

func TestEnforcer_DisabledLimits(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	limiter := newTestLimiter(t, Config{}, clock)
	enforcer := limiter.For("guest")
	for i := 0; i < 50; i++ {
		assert.True(t, enforcer.Record(context.Background()))
	}
	assert.True(t, enforcer.CanSend(context.Background()))
}

type failingStore struct{}

func (failingStore) Count(context.Context, string) (int, error) {
	return 0, errors.New("redis: connection refused")
}

func (failingStore) Increment(context.Context, string, time.Time) (int, error) {
	return 0, errors.New("redis: connection refused")
}

func TestEnforcer_StoreFailureFailsOpen(t *testing.T) {
	limiter, err := NewLimiter(Config{DailyLimit: 1}, failingStore{}, zerolog.Nop())
	require.NoError(t, err)
	enforcer := limiter.For("guest")

	assert.True(t, enforcer.CanSend(context.Background()))
	assert.True(t, enforcer.Record(context.Background()))
}

func TestNewLimiter_RequiresStore(t *testing.T) {
	_, err := NewLimiter(Config{}, nil, zerolog.Nop())
	assert.Error(t, err)
}

func TestMemoryStore_Prune(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStoreWithClock(clock.Now)
	ctx := context.Background()

	_, _ = store.Increment(ctx, "a", clock.Now().Add(time.Hour))
	_, _ = store.Increment(ctx, "b", clock.Now().Add(3*time.Hour))

	assert.Equal(t, 1, store.Prune(clock.Now().Add(2*time.Hour)))
	count, err := store.Count(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUnlimited(t *testing.T) {
	var enforcer Enforcer = Unlimited{}
	assert.True(t, enforcer.CanSend(context.Background()))
	assert.True(t, enforcer.Record(context.Background()))
}
