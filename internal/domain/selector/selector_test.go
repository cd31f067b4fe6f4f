package selector

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"jan-server/services/chat-api/internal/domain/conversation"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mockLoader struct {
	listMessagesFn      func(ctx context.Context, id string) ([]conversation.Message, error)
	listConversationsFn func(ctx context.Context, ownerID *string) ([]*conversation.Conversation, error)
}

func (m *mockLoader) ListMessages(ctx context.Context, id string) ([]conversation.Message, error) {
	return m.listMessagesFn(ctx, id)
}

func (m *mockLoader) ListConversations(ctx context.Context, ownerID *string) ([]*conversation.Conversation, error) {
	if m.listConversationsFn == nil {
		return nil, nil
	}
	return m.listConversationsFn(ctx, ownerID)
}

func newSelector(t *testing.T, loader Loader) *Selector {
	t.Helper()
	s, err := New(loader, 8, zerolog.Nop())
	require.NoError(t, err)
	return s
}

func msgs(ids ...string) []conversation.Message {
	out := make([]conversation.Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, conversation.Message{ID: id, Role: conversation.RoleUser, Content: id})
	}
	return out
}

func TestSelect_LoadsTranscript(t *testing.T) {
	loader := &mockLoader{listMessagesFn: func(context.Context, string) ([]conversation.Message, error) {
		return msgs("a", "b"), nil
	}}
	s := newSelector(t, loader)

	require.NoError(t, s.Select(context.Background(), "conv_1"))

	view := s.Snapshot()
	assert.Equal(t, "conv_1", view.ConversationID)
	assert.Equal(t, conversation.DefaultTitle, view.Title)
	if diff := cmp.Diff(msgs("a", "b"), view.Messages); diff != "" {
		t.Errorf("transcript mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, s.Loading())

	cached, ok := s.Cached("conv_1")
	require.True(t, ok)
	assert.Len(t, cached, 2)
}

func TestSelect_CoalescesConcurrentLoads(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	loader := &mockLoader{listMessagesFn: func(context.Context, string) ([]conversation.Message, error) {
		calls.Add(1)
		<-release
		return msgs("a"), nil
	}}
	s := newSelector(t, loader)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Select(context.Background(), "conv_1"))
		}()
	}

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.loading["conv_1"] == 3
	}, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, s.Loading())
}

func TestSelect_JoinedLoadSurvivesFirstCallerCancel(t *testing.T) {
	release := make(chan struct{})
	loader := &mockLoader{listMessagesFn: func(ctx context.Context, _ string) ([]conversation.Message, error) {
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return msgs("a"), nil
	}}
	s := newSelector(t, loader)

	firstCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	results := make(chan error, 2)
	go func() { results <- s.Select(firstCtx, "conv_1") }()
	require.Eventually(t, s.Loading, time.Second, time.Millisecond)
	go func() { results <- s.Select(context.Background(), "conv_1") }()

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.loading["conv_1"] == 2
	}, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	cancel()
	close(release)

	require.NoError(t, <-results)
	require.NoError(t, <-results)
	view := s.Snapshot()
	assert.Equal(t, conversation.DefaultTitle, view.Title)
	assert.Equal(t, msgs("a"), view.Messages)
	_, cached := s.Cached("conv_1")
	assert.True(t, cached)
}

func TestUpdateIdle_SkipsWhileLoading(t *testing.T) {
	release := make(chan struct{})
	loader := &mockLoader{listMessagesFn: func(context.Context, string) ([]conversation.Message, error) {
		<-release
		return msgs("a"), nil
	}}
	s := newSelector(t, loader)

	done := make(chan error, 1)
	go func() { done <- s.Select(context.Background(), "conv_1") }()
	require.Eventually(t, s.Loading, time.Second, time.Millisecond)

	called := false
	assert.False(t, s.UpdateIdle(func(*View) { called = true }))
	assert.False(t, called)

	close(release)
	require.NoError(t, <-done)

	assert.True(t, s.UpdateIdle(func(v *View) { v.Messages = append(v.Messages, msgs("b")...) }))
	assert.Equal(t, msgs("a", "b"), s.Snapshot().Messages)
}

func TestSelect_ReselectReloads(t *testing.T) {
	var calls atomic.Int32
	loader := &mockLoader{listMessagesFn: func(context.Context, string) ([]conversation.Message, error) {
		n := calls.Add(1)
		if n == 1 {
			return msgs("a"), nil
		}
		return msgs("a", "b"), nil
	}}
	s := newSelector(t, loader)
	ctx := context.Background()

	require.NoError(t, s.Select(ctx, "conv_1"))
	require.NoError(t, s.Select(ctx, "conv_1"))

	assert.Equal(t, int32(2), calls.Load())
	assert.Len(t, s.Snapshot().Messages, 2)
}

func TestSelect_EmptyResultIsCached(t *testing.T) {
	loader := &mockLoader{listMessagesFn: func(context.Context, string) ([]conversation.Message, error) {
		return nil, nil
	}}
	s := newSelector(t, loader)

	require.NoError(t, s.Select(context.Background(), "conv_1"))
	cached, ok := s.Cached("conv_1")
	require.True(t, ok)
	assert.Empty(t, cached)
	assert.NotNil(t, s.Snapshot().Messages)
}

func TestSelect_FailureDegradesView(t *testing.T) {
	fail := false
	loader := &mockLoader{listMessagesFn: func(context.Context, string) ([]conversation.Message, error) {
		if fail {
			return nil, errors.New("connection refused")
		}
		return msgs("a"), nil
	}}
	s := newSelector(t, loader)
	ctx := context.Background()

	require.NoError(t, s.Select(ctx, "conv_1"))
	fail = true
	err := s.Select(ctx, "conv_1")
	require.Error(t, err)

	view := s.Snapshot()
	assert.Empty(t, view.Messages)
	assert.Equal(t, DegradedTitle, view.Title)
	_, cached := s.Cached("conv_1")
	assert.False(t, cached)
	assert.False(t, s.Loading())
}

func TestSelect_StaleLoadDoesNotReplaceNewerView(t *testing.T) {
	release := make(chan struct{})
	loader := &mockLoader{listMessagesFn: func(_ context.Context, id string) ([]conversation.Message, error) {
		if id == "conv_slow" {
			<-release
			return msgs("slow"), nil
		}
		return msgs("fast"), nil
	}}
	s := newSelector(t, loader)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- s.Select(ctx, "conv_slow") }()
	require.Eventually(t, func() bool { return s.ActiveID() == "conv_slow" }, time.Second, time.Millisecond)

	require.NoError(t, s.Select(ctx, "conv_fast"))
	close(release)
	require.NoError(t, <-done)

	view := s.Snapshot()
	assert.Equal(t, "conv_fast", view.ConversationID)
	assert.Equal(t, msgs("fast"), view.Messages)

	cached, ok := s.Cached("conv_slow")
	require.True(t, ok)
	assert.Equal(t, msgs("slow"), cached)
}

func TestSelect_ShowsCachedWhileLoading(t *testing.T) {
	release := make(chan struct{})
	loader := &mockLoader{listMessagesFn: func(context.Context, string) ([]conversation.Message, error) {
		<-release
		return msgs("a", "b"), nil
	}}
	s := newSelector(t, loader)
	s.Store("conv_1", msgs("a"))

	done := make(chan error, 1)
	go func() { done <- s.Select(context.Background(), "conv_1") }()

	require.Eventually(t, s.Loading, time.Second, time.Millisecond)
	assert.Equal(t, msgs("a"), s.Snapshot().Messages)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, msgs("a", "b"), s.Snapshot().Messages)
}

func TestSelect_RequiresID(t *testing.T) {
	s := newSelector(t, &mockLoader{})
	assert.ErrorIs(t, s.Select(context.Background(), ""), ErrEmptyConversationID)
}

func TestDiscard(t *testing.T) {
	loader := &mockLoader{
		listMessagesFn: func(context.Context, string) ([]conversation.Message, error) { return msgs("a"), nil },
		listConversationsFn: func(context.Context, *string) ([]*conversation.Conversation, error) {
			return []*conversation.Conversation{{ID: "conv_1", Title: "Kyoto"}, {ID: "conv_2", Title: "Go"}}, nil
		},
	}
	s := newSelector(t, loader)
	ctx := context.Background()
	require.NoError(t, s.RefreshConversations(ctx, nil))
	require.NoError(t, s.Select(ctx, "conv_1"))
	assert.Equal(t, "Kyoto", s.Snapshot().Title)

	assert.False(t, s.Discard("conv_2"))
	assert.Equal(t, "conv_1", s.ActiveID())

	assert.True(t, s.Discard("conv_1"))
	view := s.Snapshot()
	assert.Empty(t, view.ConversationID)
	assert.Empty(t, view.Messages)
	assert.Empty(t, s.Conversations())
	_, cached := s.Cached("conv_1")
	assert.False(t, cached)
}

func TestAdoptAndApplyTitle(t *testing.T) {
	s := newSelector(t, &mockLoader{})

	assert.Equal(t, "conv_new", s.Adopt("conv_new"))
	assert.Equal(t, "conv_new", s.Adopt("conv_other"))

	s.ApplyTitle("conv_new", "First")
	s.ApplyTitle("conv_new", "Second")
	assert.Equal(t, "Second", s.Snapshot().Title)

	s.ApplyTitle("conv_other", "Ignored")
	assert.Equal(t, "Second", s.Snapshot().Title)

	s.Reset()
	assert.Equal(t, View{Title: conversation.DefaultTitle}, s.Snapshot())
}

func TestRefreshConversations_Error(t *testing.T) {
	s := newSelector(t, &mockLoader{listConversationsFn: func(context.Context, *string) ([]*conversation.Conversation, error) {
		return nil, errors.New("boom")
	}})
	assert.Error(t, s.RefreshConversations(context.Background(), nil))
}
