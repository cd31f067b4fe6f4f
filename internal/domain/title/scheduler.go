// Package title derives short conversation titles in the background.
package title

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"

	"jan-server/services/chat-api/internal/domain/conversation"
	"jan-server/services/chat-api/internal/utils/stringutils"
)

// Outcomes reported to the Observer.
const (
	OutcomeApplied    = "applied"
	OutcomeDegenerate = "degenerate"
	OutcomeFailed     = "failed"
	OutcomeDropped    = "dropped"
	OutcomeClaimed    = "claimed"
)

// Provider summarizes an early exchange into a title.
type Provider interface {
	Summarize(ctx context.Context, transcript []conversation.Message) (string, error)
}

// Store persists a derived title.
type Store interface {
	UpdateTitle(ctx context.Context, conversationID string, title string) error
}

// Observer receives one outcome per processed job.
type Observer interface {
	ObserveTitle(outcome string)
}

// Claimer arbitrates between service replicas so only one of them derives a
// title for a given conversation.
type Claimer interface {
	Claim(ctx context.Context, conversationID string) bool
}

// Job asks for a title for one conversation. Apply, when set, is called with
// the accepted title after it has been stored.
type Job struct {
	ConversationID string
	Transcript     []conversation.Message
	Apply          func(title string)
}

// Config contains scheduler configuration.
type Config struct {
	Delay       time.Duration
	TaskTimeout time.Duration
	WorkerCount int
	QueueSize   int
	MaxLength   int
	// MemorySize bounds how many conversation ids are remembered as attempted.
	MemorySize int
}

func (c Config) withDefaults() Config {
	if c.WorkerCount <= 0 {
		c.WorkerCount = 1
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.MaxLength <= 0 {
		c.MaxLength = 60
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 20 * time.Second
	}
	if c.MemorySize <= 0 {
		c.MemorySize = 4096
	}
	return c
}

// Scheduler runs title jobs on a small worker pool. Each conversation id is
// attempted at most once and nothing is retried.
type Scheduler struct {
	provider Provider
	store    Store
	observer Observer
	claimer  Claimer
	cfg      Config
	log      zerolog.Logger

	queue     chan Job
	attempted *lru.Cache

	mu       sync.Mutex
	timers   map[string]*time.Timer
	stopped  bool
	started  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler; call Start before scheduling.
func NewScheduler(provider Provider, store Store, cfg Config, log zerolog.Logger) (*Scheduler, error) {
	if provider == nil {
		return nil, errors.New("title provider is required")
	}
	cfg = cfg.withDefaults()
	attempted, err := lru.New(cfg.MemorySize)
	if err != nil {
		return nil, fmt.Errorf("create attempted set: %w", err)
	}
	return &Scheduler{
		provider:  provider,
		store:     store,
		cfg:       cfg,
		log:       log.With().Str("component", "title-scheduler").Logger(),
		queue:     make(chan Job, cfg.QueueSize),
		attempted: attempted,
		timers:    make(map[string]*time.Timer),
		stopChan:  make(chan struct{}),
	}, nil
}

// SetObserver attaches an outcome observer. Not safe once Start has been called.
func (s *Scheduler) SetObserver(o Observer) {
	s.observer = o
}

// SetClaimer attaches a cross-replica claimer. Not safe once Start has been called.
func (s *Scheduler) SetClaimer(c Claimer) {
	s.claimer = c
}

// Start launches the workers.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.log.Info().Int("worker_count", s.cfg.WorkerCount).Msg("starting title workers")
	for i := 0; i < s.cfg.WorkerCount; i++ {
		s.wg.Add(1)
		go func(id int) {
			defer s.wg.Done()
			s.runWorker(ctx, id)
		}(i + 1)
	}
}

// Schedule queues job after the configured delay and returns immediately. It
// reports false when the conversation was already attempted or the scheduler
// is stopped.
func (s *Scheduler) Schedule(job Job) bool {
	if job.ConversationID == "" {
		return false
	}
	job.Transcript = conversation.CloneMessages(job.Transcript)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	if ok, _ := s.attempted.ContainsOrAdd(job.ConversationID, struct{}{}); ok {
		return false
	}

	s.timers[job.ConversationID] = time.AfterFunc(s.cfg.Delay, func() {
		s.mu.Lock()
		delete(s.timers, job.ConversationID)
		stopped := s.stopped
		s.mu.Unlock()
		if stopped {
			return
		}
		select {
		case s.queue <- job:
		default:
			s.log.Debug().Str("conversation_id", job.ConversationID).Msg("title queue full, dropping job")
			s.observe(OutcomeDropped)
		}
	})
	return true
}

// Stop cancels pending timers and waits for the workers to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	close(s.stopChan)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info().Msg("title workers stopped")
	case <-time.After(30 * time.Second):
		s.log.Warn().Msg("title worker shutdown timed out")
	}
}

func (s *Scheduler) runWorker(ctx context.Context, id int) {
	log := s.log.With().Int("worker_id", id).Logger()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("title worker stopped by context")
			return
		case <-s.stopChan:
			return
		case job := <-s.queue:
			s.process(ctx, job, log)
		}
	}
}

func (s *Scheduler) process(ctx context.Context, job Job, log zerolog.Logger) {
	taskCtx, cancel := context.WithTimeout(ctx, s.cfg.TaskTimeout)
	defer cancel()

	log = log.With().Str("conversation_id", job.ConversationID).Logger()

	if s.claimer != nil && !s.claimer.Claim(taskCtx, job.ConversationID) {
		log.Debug().Msg("title claimed by another replica")
		s.observe(OutcomeClaimed)
		return
	}

	raw, err := s.provider.Summarize(taskCtx, job.Transcript)
	if err != nil {
		log.Debug().Err(err).Msg("title derivation failed")
		s.observe(OutcomeFailed)
		return
	}

	title, ok := Clean(raw, s.cfg.MaxLength)
	if !ok {
		log.Debug().Str("raw", raw).Msg("discarding degenerate title")
		s.observe(OutcomeDegenerate)
		return
	}

	if s.store != nil {
		if err := s.store.UpdateTitle(taskCtx, job.ConversationID, title); err != nil {
			log.Debug().Err(err).Msg("failed to store derived title")
		}
	}
	if job.Apply != nil {
		job.Apply(title)
	}
	s.observe(OutcomeApplied)
	log.Debug().Str("title", title).Msg("conversation titled")
}

func (s *Scheduler) observe(outcome string) {
	if s.observer != nil {
		s.observer.ObserveTitle(outcome)
	}
}

// Clean sanitizes a summarizer result and reports whether it is usable.
func Clean(raw string, maxLen int) (string, bool) {
	title := stringutils.GenerateTitle(raw, maxLen)
	if stringutils.IsPlaceholderTitle(title) {
		return "", false
	}
	return title, true
}

// ShouldDerive reports whether a conversation is early enough, and still
// untitled, to be worth naming.
func ShouldDerive(messageCount int, currentTitle string) bool {
	return messageCount <= 2 && (currentTitle == "" || currentTitle == conversation.DefaultTitle)
}
