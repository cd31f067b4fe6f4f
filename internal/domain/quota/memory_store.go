package quota

import (
	"context"
	"sync"
	"time"
)

type memoryCounter struct {
	count    int
	expireAt time.Time
}

// MemoryStore keeps counters in process. Expired windows are dropped by Prune.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*memoryCounter
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock is NewMemoryStore with an injectable clock.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{counters: make(map[string]*memoryCounter), now: now}
}

func (s *MemoryStore) Count(_ context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[key]
	if !ok || !s.now().Before(c.expireAt) {
		return 0, nil
	}
	return c.count, nil
}

func (s *MemoryStore) Increment(_ context.Context, key string, expireAt time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[key]
	if !ok || !s.now().Before(c.expireAt) {
		c = &memoryCounter{expireAt: expireAt}
		s.counters[key] = c
	}
	c.count++
	return c.count, nil
}

// Prune removes counters whose window has ended and returns how many were dropped.
func (s *MemoryStore) Prune(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, c := range s.counters {
		if !now.Before(c.expireAt) {
			delete(s.counters, key)
			removed++
		}
	}
	return removed
}
