// Package turn executes chat turns: one user message in, one streamed reply out.
package turn

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"jan-server/services/chat-api/internal/domain/conversation"
	"jan-server/services/chat-api/internal/domain/persistence"
	"jan-server/services/chat-api/internal/domain/quota"
	"jan-server/services/chat-api/internal/domain/selector"
	"jan-server/services/chat-api/internal/domain/title"
	"jan-server/services/chat-api/internal/utils/idgen"
)

var tracer = otel.Tracer("jan-server/chat-api/turn")

// Turn outcomes reported to the Observer.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
)

// AIProvider streams a reply for transcript. onChunk is called for every
// fragment in arrival order; the full text is returned at the end.
type AIProvider interface {
	Send(ctx context.Context, transcript []conversation.Message, model string, onChunk func(string)) (string, error)
}

// Persistence is the durable side of a turn.
type Persistence interface {
	Persist(ctx context.Context, rec persistence.TurnRecord, refresher persistence.ListRefresher) persistence.PersistReport
	DeleteConversation(ctx context.Context, id string) error
}

// TitleScheduler accepts fire-and-forget title jobs.
type TitleScheduler interface {
	Schedule(job title.Job) bool
}

// Observer receives turn lifecycle signals; used for metrics.
type Observer interface {
	GenerationStarted()
	GenerationFinished(outcome string, regenerate bool, elapsed time.Duration)
	FirstChunk(elapsed time.Duration)
	ChunkReceived()
	QuotaDenied()
}

type nopObserver struct{}

func (nopObserver) GenerationStarted()                              {}
func (nopObserver) GenerationFinished(string, bool, time.Duration) {}
func (nopObserver) FirstChunk(time.Duration)                        {}
func (nopObserver) ChunkReceived()                                  {}
func (nopObserver) QuotaDenied()                                    {}

// Identity is who the orchestrator acts for. A nil OwnerID means anonymous.
type Identity struct {
	OwnerID      *string
	AnonymousKey string
}

// Anonymous reports whether the identity is unauthenticated.
func (i Identity) Anonymous() bool {
	return i.OwnerID == nil
}

// Chunk is one streamed fragment as seen by a caller.
type Chunk struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Delta          string `json:"delta"`
}

// TurnOptions modify a SendTurn call.
type TurnOptions struct {
	Regenerate  bool
	TargetModel string
	// OnChunk runs on the calling goroutine for every fragment.
	OnChunk func(Chunk)
}

// TurnResult describes a finished turn. Provider failures are reported here
// rather than as an error.
type TurnResult struct {
	ConversationID   string                `json:"conversation_id"`
	UserMessage      *conversation.Message `json:"user_message,omitempty"`
	AssistantMessage conversation.Message  `json:"assistant_message"`
	Model            string                `json:"model"`
	Failed           bool                  `json:"failed"`
	ErrorKind        Kind                  `json:"error_kind,omitempty"`
	ErrorMessage     string                `json:"error_message,omitempty"`
	Duration         time.Duration         `json:"duration"`
}

// Snapshot is the externally visible state of an orchestrator.
type Snapshot struct {
	ConversationID string                 `json:"conversation_id"`
	Title          string                 `json:"title"`
	Messages       []conversation.Message `json:"messages"`
	Generating     bool                   `json:"generating"`
	Loading        bool                   `json:"loading"`
	State          State                  `json:"state"`
	LastError      string                 `json:"last_error,omitempty"`
	Model          string                 `json:"model,omitempty"`
}

// Config holds model resolution settings.
type Config struct {
	DefaultModel  string
	AllowedModels []string
}

// Dependencies are the collaborators an orchestrator composes.
type Dependencies struct {
	Provider    AIProvider
	Persistence Persistence
	Titles      TitleScheduler
	Quota       quota.Enforcer
	Selector    *selector.Selector
	Classifier  *Classifier
	Observer    Observer
	Logger      zerolog.Logger
}

// Orchestrator runs turns for a single client. At most one generation is in
// flight at a time; concurrent attempts are rejected, never queued.
type Orchestrator struct {
	identity   Identity
	provider   AIProvider
	store      Persistence
	titles     TitleScheduler
	quota      quota.Enforcer
	selector   *selector.Selector
	classifier *Classifier
	observer   Observer
	log        zerolog.Logger

	allowed map[string]struct{}
	permit  Permit

	mu        sync.Mutex
	state     State
	lastError string
	model     string

	// delMu guards the conversation of the running turn and the ids deleted
	// while it runs. Taken after the selector lock, before the permit's.
	delMu      sync.Mutex
	activeConv string
	deleted    map[string]struct{}
}

func NewOrchestrator(identity Identity, deps Dependencies, cfg Config) *Orchestrator {
	o := &Orchestrator{
		identity:   identity,
		provider:   deps.Provider,
		store:      deps.Persistence,
		titles:     deps.Titles,
		quota:      deps.Quota,
		selector:   deps.Selector,
		classifier: deps.Classifier,
		observer:   deps.Observer,
		log:        deps.Logger.With().Str("component", "turn").Logger(),
		state:      StateIdle,
		model:      cfg.DefaultModel,
		deleted:    make(map[string]struct{}),
	}
	if o.classifier == nil {
		o.classifier = NewClassifier()
	}
	if o.observer == nil {
		o.observer = nopObserver{}
	}
	if o.quota == nil || !identity.Anonymous() {
		o.quota = quota.Unlimited{}
	}
	if len(cfg.AllowedModels) > 0 {
		o.allowed = make(map[string]struct{}, len(cfg.AllowedModels))
		for _, m := range cfg.AllowedModels {
			o.allowed[m] = struct{}{}
		}
	}
	return o
}

func (o *Orchestrator) advance(target State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	next, err := o.state.TransitionTo(target)
	if err != nil {
		o.log.Error().Str("from", o.state.String()).Str("to", target.String()).Msg("invalid turn state transition")
		next = target
	}
	o.state = next
}

func (o *Orchestrator) resolveModel(target string) (string, error) {
	model := strings.TrimSpace(target)
	if model == "" {
		o.mu.Lock()
		model = o.model
		o.mu.Unlock()
	}
	if model == "" {
		return "", ErrNoModel
	}
	if o.allowed != nil {
		if _, ok := o.allowed[model]; !ok {
			return "", ErrUnknownModel
		}
	}
	return model, nil
}

func (o *Orchestrator) isDeleted(id string) bool {
	o.delMu.Lock()
	defer o.delMu.Unlock()
	_, ok := o.deleted[id]
	return ok
}

// markDeleted remembers id only while a turn for it is running.
func (o *Orchestrator) markDeleted(id string) {
	o.delMu.Lock()
	defer o.delMu.Unlock()
	if o.activeConv == id {
		o.deleted[id] = struct{}{}
	}
}

func (o *Orchestrator) unmarkDeleted(id string) {
	o.delMu.Lock()
	delete(o.deleted, id)
	o.delMu.Unlock()
}

// SendTurn runs one turn. Validation and quota rejections return an error
// before anything is mutated.
func (o *Orchestrator) SendTurn(ctx context.Context, content string, opts TurnOptions) (*TurnResult, error) {
	content = strings.TrimSpace(content)
	if !opts.Regenerate && content == "" {
		return nil, rejectTurn(ctx, ErrEmptyContent)
	}

	session := &StreamSession{StartedAt: time.Now()}
	if !o.permit.TryAcquire(session) {
		return nil, rejectTurn(ctx, ErrGenerationInProgress)
	}

	model, err := o.resolveModel(opts.TargetModel)
	if err != nil {
		o.permit.Release()
		return nil, rejectTurn(ctx, err)
	}
	session.Model = model

	if !opts.Regenerate && !o.quota.CanSend(ctx) {
		o.permit.Release()
		o.observer.QuotaDenied()
		return nil, rejectTurn(ctx, quota.ErrQuotaExceeded)
	}

	newConversationID, err := idgen.NewConversationID()
	if err != nil {
		o.permit.Release()
		return nil, err
	}
	ids, err := newMessageIDs()
	if err != nil {
		o.permit.Release()
		return nil, err
	}

	var (
		userMsg    *conversation.Message
		history    []conversation.Message
		superseded string
		rejected   error
	)
	now := time.Now().UTC()
	idle := o.selector.UpdateIdle(func(v *selector.View) {
		lastUser := conversation.LastUserIndex(v.Messages)
		if opts.Regenerate && lastUser < 0 {
			rejected = ErrNothingToRegenerate
			return
		}
		if v.ConversationID == "" {
			v.ConversationID = newConversationID
		}
		session.ConversationID = v.ConversationID
		o.delMu.Lock()
		o.activeConv = v.ConversationID
		o.delMu.Unlock()

		if opts.Regenerate {
			if n := len(v.Messages); n > 0 && v.Messages[n-1].IsAssistant() {
				if v.Messages[n-1].Status != conversation.MessageStatusError {
					superseded = v.Messages[n-1].ID
				}
				v.Messages = v.Messages[:n-1]
			}
			history = conversation.CloneMessages(v.Messages[:conversation.LastUserIndex(v.Messages)+1])
			return
		}

		userMsg = &conversation.Message{
			ID:             ids.user,
			ConversationID: v.ConversationID,
			Role:           conversation.RoleUser,
			Content:        content,
			Status:         conversation.MessageStatusComplete,
			CreatedAt:      now,
		}
		v.Messages = append(v.Messages, *userMsg)
		history = conversation.CloneMessages(v.Messages)
	})
	if !idle {
		rejected = ErrConversationLoading
	}
	if rejected != nil {
		o.releaseTurn("")
		return nil, rejectTurn(ctx, rejected)
	}

	return o.run(ctx, session, runInput{
		opts:        opts,
		userMsg:     userMsg,
		history:     history,
		superseded:  superseded,
		assistantID: ids.assistant,
	}), nil
}

// Regenerate replaces the latest reply with a fresh one for the same prompt.
func (o *Orchestrator) Regenerate(ctx context.Context, opts TurnOptions) (*TurnResult, error) {
	opts.Regenerate = true
	return o.SendTurn(ctx, "", opts)
}

type messageIDs struct {
	user      string
	assistant string
}

func newMessageIDs() (messageIDs, error) {
	user, err := idgen.NewMessageID()
	if err != nil {
		return messageIDs{}, err
	}
	assistant, err := idgen.NewMessageID()
	if err != nil {
		return messageIDs{}, err
	}
	return messageIDs{user: user, assistant: assistant}, nil
}

type runInput struct {
	opts        TurnOptions
	userMsg     *conversation.Message
	history     []conversation.Message
	superseded  string
	assistantID string
}

// run drives an accepted turn from Drafting back to Idle. The permit is
// released on every path.
func (o *Orchestrator) run(ctx context.Context, session *StreamSession, in runInput) *TurnResult {
	convID := session.ConversationID
	// the turn finishes even if the caller goes away
	ctx = context.WithoutCancel(ctx)
	ctx, span := tracer.Start(ctx, "turn.send")
	span.SetAttributes(
		attribute.String("conversation.id", convID),
		attribute.String("model", session.Model),
		attribute.Bool("turn.regenerate", in.opts.Regenerate),
	)
	log := o.log.With().Str("conversation_id", convID).Str("model", session.Model).Bool("regenerate", in.opts.Regenerate).Logger()

	o.mu.Lock()
	o.lastError = ""
	o.mu.Unlock()

	outcome := OutcomeFailed
	o.observer.GenerationStarted()
	defer func() {
		o.advance(StateIdle)
		o.releaseTurn(convID)
		o.observer.GenerationFinished(outcome, in.opts.Regenerate, time.Since(session.StartedAt))
		span.End()
	}()

	o.advance(StateDrafting)

	o.advance(StateAwaiting)
	placeholder := conversation.Message{
		ID:             in.assistantID,
		ConversationID: convID,
		Role:           conversation.RoleAssistant,
		Model:          session.Model,
		Status:         conversation.MessageStatusPending,
		CreatedAt:      time.Now().UTC(),
	}
	session.TargetMessageID = placeholder.ID
	o.selector.Update(func(v *selector.View) {
		if v.ConversationID == convID {
			v.Messages = append(v.Messages, placeholder)
		}
	})

	o.advance(StateStreaming)
	fullText, err := o.provider.Send(ctx, in.history, session.Model, func(chunk string) {
		if chunk == "" {
			return
		}
		if session.received() == 1 {
			o.observer.FirstChunk(time.Since(session.StartedAt))
		}
		o.observer.ChunkReceived()
		o.applyToView(convID, placeholder.ID, func(m *conversation.Message) {
			m.Content += chunk
			m.Status = conversation.MessageStatusStreaming
		})
		if in.opts.OnChunk != nil {
			in.opts.OnChunk(Chunk{ConversationID: convID, MessageID: placeholder.ID, Delta: chunk})
		}
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn().Err(err).Msg("provider call failed")
		return o.fail(ctx, session, in, placeholder, err)
	}

	o.advance(StateFinalizing)
	if conversation.IsBlank(fullText) {
		span.SetStatus(codes.Error, errEmptyResponse.Error())
		log.Warn().Msg("provider returned an empty response")
		return o.fail(ctx, session, in, placeholder, errEmptyResponse)
	}

	assistant := placeholder
	assistant.Content = fullText
	assistant.Status = conversation.MessageStatusComplete
	o.applyToView(convID, placeholder.ID, func(m *conversation.Message) {
		m.Content = fullText
		m.Status = conversation.MessageStatusComplete
	})

	view := o.selector.Snapshot()
	viewActive := view.ConversationID == convID
	// a reload while streaming drops the placeholder; the store is then the truth
	if viewActive && conversation.IndexOf(view.Messages, placeholder.ID) >= 0 {
		o.selector.Store(convID, view.Messages)
	} else {
		o.selector.Evict(convID)
	}

	o.mu.Lock()
	o.model = session.Model
	o.mu.Unlock()

	if o.isDeleted(convID) {
		log.Info().Msg("conversation deleted during generation, skipping persistence")
	} else {
		currentTitle := conversation.DefaultTitle
		if viewActive {
			currentTitle = view.Title
		}
		report := o.store.Persist(ctx, persistence.TurnRecord{
			ConversationID:      convID,
			OwnerID:             o.identity.OwnerID,
			Title:               currentTitle,
			Model:               session.Model,
			UserMessage:         in.userMsg,
			SupersededMessageID: in.superseded,
			AssistantMessage:    &assistant,
		}, o.selector)
		log.Debug().Interface("report", report).Msg("turn persisted")

		transcript := append(conversation.CloneMessages(in.history), assistant)
		if o.titles != nil && title.ShouldDerive(len(transcript), currentTitle) {
			o.titles.Schedule(title.Job{
				ConversationID: convID,
				Transcript:     transcript,
				Apply: func(t string) {
					o.selector.ApplyTitle(convID, t)
				},
			})
		}
	}

	if !in.opts.Regenerate && o.identity.Anonymous() {
		if !o.quota.Record(ctx) {
			log.Warn().Msg("quota exceeded while recording usage")
		}
	}

	outcome = OutcomeCompleted
	span.SetStatus(codes.Ok, "")
	return &TurnResult{
		ConversationID:   convID,
		UserMessage:      in.userMsg,
		AssistantMessage: assistant,
		Model:            session.Model,
		Duration:         time.Since(session.StartedAt),
	}
}

// fail moves the turn into Error, replaces the placeholder with a readable
// message and keeps the user's message durable.
func (o *Orchestrator) fail(ctx context.Context, session *StreamSession, in runInput, placeholder conversation.Message, cause error) *TurnResult {
	o.advance(StateError)
	classified := o.classifier.Classify(cause)

	failed := placeholder
	failed.Content = classified.Message
	failed.Status = conversation.MessageStatusError
	o.applyToView(session.ConversationID, placeholder.ID, func(m *conversation.Message) {
		m.Content = classified.Message
		m.Status = conversation.MessageStatusError
	})

	o.mu.Lock()
	o.lastError = classified.Message
	o.mu.Unlock()

	if in.userMsg != nil && !o.isDeleted(session.ConversationID) {
		o.store.Persist(ctx, persistence.TurnRecord{
			ConversationID: session.ConversationID,
			OwnerID:        o.identity.OwnerID,
			Model:          session.Model,
			UserMessage:    in.userMsg,
		}, o.selector)
	}

	return &TurnResult{
		ConversationID:   session.ConversationID,
		UserMessage:      in.userMsg,
		AssistantMessage: failed,
		Model:            session.Model,
		Failed:           true,
		ErrorKind:        classified.Kind,
		ErrorMessage:     classified.Message,
		Duration:         time.Since(session.StartedAt),
	}
}

// releaseTurn forgets the running turn's conversation and frees the permit.
func (o *Orchestrator) releaseTurn(convID string) {
	o.delMu.Lock()
	delete(o.deleted, convID)
	o.activeConv = ""
	o.permit.Release()
	o.delMu.Unlock()
}

func (o *Orchestrator) applyToView(convID, messageID string, fn func(m *conversation.Message)) {
	o.selector.Update(func(v *selector.View) {
		if v.ConversationID != convID {
			return
		}
		if i := conversation.IndexOf(v.Messages, messageID); i >= 0 {
			fn(&v.Messages[i])
		}
	})
}

// NewConversation clears the view so the next send starts a new conversation.
func (o *Orchestrator) NewConversation() {
	o.selector.Reset()
	o.mu.Lock()
	o.lastError = ""
	o.mu.Unlock()
}

// SelectConversation switches the view to id and reloads its transcript.
func (o *Orchestrator) SelectConversation(ctx context.Context, id string) error {
	o.mu.Lock()
	o.lastError = ""
	o.mu.Unlock()
	return o.selector.Select(ctx, id)
}

// DeleteConversation removes id. Deleting the active conversation clears the view.
func (o *Orchestrator) DeleteConversation(ctx context.Context, id string) error {
	o.markDeleted(id)
	if err := o.store.DeleteConversation(ctx, id); err != nil {
		o.unmarkDeleted(id)
		return err
	}
	if o.selector.Discard(id) {
		o.log.Debug().Str("conversation_id", id).Msg("active conversation deleted")
	}
	// a turn may have picked up id before the view was cleared
	o.markDeleted(id)
	return nil
}

// Conversations reloads and returns the identity's conversation list.
func (o *Orchestrator) Conversations(ctx context.Context) ([]conversation.Conversation, error) {
	if err := o.selector.RefreshConversations(ctx, o.identity.OwnerID); err != nil {
		return nil, err
	}
	return o.selector.Conversations(), nil
}

// SelectModel sets the model used when a turn does not name one.
func (o *Orchestrator) SelectModel(model string) error {
	model = strings.TrimSpace(model)
	if model == "" {
		return rejectTurn(context.Background(), ErrNoModel)
	}
	if o.allowed != nil {
		if _, ok := o.allowed[model]; !ok {
			return rejectTurn(context.Background(), ErrUnknownModel)
		}
	}
	o.mu.Lock()
	o.model = model
	o.mu.Unlock()
	return nil
}

// Generating reports whether a generation is in flight.
func (o *Orchestrator) Generating() bool {
	return o.permit.Held()
}

// QuotaStats reports usage for the orchestrator's identity.
func (o *Orchestrator) QuotaStats(ctx context.Context) quota.Stats {
	return o.quota.Stats(ctx)
}

// Identity returns who the orchestrator acts for.
func (o *Orchestrator) Identity() Identity {
	return o.identity
}

// Snapshot returns a consistent copy of the visible state.
func (o *Orchestrator) Snapshot() Snapshot {
	view := o.selector.Snapshot()
	o.mu.Lock()
	defer o.mu.Unlock()
	return Snapshot{
		ConversationID: view.ConversationID,
		Title:          view.Title,
		Messages:       view.Messages,
		Generating:     o.permit.Held(),
		Loading:        o.selector.Loading(),
		State:          o.state,
		LastError:      o.lastError,
		Model:          o.model,
	}
}
