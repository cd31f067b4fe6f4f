package turn

import (
	"sync"
	"time"
)

// StreamSession tracks the reply being generated. It only exists while the
// owning Permit is held.
type StreamSession struct {
	ConversationID  string
	TargetMessageID string
	Model           string
	StartedAt       time.Time

	mu     sync.Mutex
	chunks int
}

// received counts a chunk and returns how many have arrived.
func (s *StreamSession) received() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks++
	return s.chunks
}

// Permit is a single-slot, non-blocking generation lock.
type Permit struct {
	mu      sync.Mutex
	session *StreamSession
}

// TryAcquire takes the permit for session. It never waits.
func (p *Permit) TryAcquire(session *StreamSession) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session != nil {
		return false
	}
	p.session = session
	return true
}

// Release frees the permit and disposes of its session.
func (p *Permit) Release() {
	p.mu.Lock()
	p.session = nil
	p.mu.Unlock()
}

// Held reports whether a generation is in progress.
func (p *Permit) Held() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session != nil
}

// Session returns the active session, or nil.
func (p *Permit) Session() *StreamSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}
