package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jan-server/services/chat-api/internal/domain/conversation"
)

func TestStore_ConversationLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()
	owner := "alice"

	_, err := s.FindConversation(ctx, "conv_1")
	assert.ErrorIs(t, err, conversation.ErrNotFound)

	require.NoError(t, s.CreateConversation(ctx, &conversation.Conversation{ID: "conv_1", OwnerID: &owner}))
	require.NoError(t, s.CreateConversation(ctx, &conversation.Conversation{ID: "conv_1", Title: "ignored"}))

	got, err := s.FindConversation(ctx, "conv_1")
	require.NoError(t, err)
	assert.Equal(t, conversation.DefaultTitle, got.Title)

	require.NoError(t, s.UpdateTitle(ctx, "conv_1", "Trip"))
	require.NoError(t, s.TouchConversation(ctx, "conv_1", "m2"))
	assert.ErrorIs(t, s.UpdateTitle(ctx, "conv_missing", "x"), conversation.ErrNotFound)

	got, _ = s.FindConversation(ctx, "conv_1")
	assert.Equal(t, "Trip", got.Title)
	assert.Equal(t, "m2", got.Model)

	require.NoError(t, s.DeleteConversation(ctx, "conv_1"))
	_, err = s.FindConversation(ctx, "conv_1")
	assert.ErrorIs(t, err, conversation.ErrNotFound)
}

func TestStore_ListConversationsByOwner(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	alice, bob := "alice", "bob"

	require.NoError(t, s.CreateConversation(ctx, &conversation.Conversation{ID: "conv_a1", OwnerID: &alice, CreatedAt: base}))
	require.NoError(t, s.CreateConversation(ctx, &conversation.Conversation{ID: "conv_a2", OwnerID: &alice, CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, s.CreateConversation(ctx, &conversation.Conversation{ID: "conv_b1", OwnerID: &bob, CreatedAt: base}))
	require.NoError(t, s.CreateConversation(ctx, &conversation.Conversation{ID: "conv_anon", CreatedAt: base}))

	list, err := s.ListConversations(ctx, &alice)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "conv_a2", list[0].ID)
	assert.Equal(t, "conv_a1", list[1].ID)

	anon, err := s.ListConversations(ctx, nil)
	require.NoError(t, err)
	require.Len(t, anon, 1)
	assert.Equal(t, "conv_anon", anon[0].ID)
}

func TestStore_Messages(t *testing.T) {
	s := New()
	ctx := context.Background()

	for _, m := range []conversation.Message{
		{ID: "m1", ConversationID: "conv_1", Role: conversation.RoleUser, Content: "hi", Status: conversation.MessageStatusComplete},
		{ID: "m2", ConversationID: "conv_1", Role: conversation.RoleAssistant, Content: "hello"},
		{ID: "m3", ConversationID: "conv_1", Role: conversation.RoleAssistant, Content: "hello again"},
	} {
		require.NoError(t, s.InsertMessage(ctx, &m))
	}
	require.NoError(t, s.DeleteMessage(ctx, "conv_1", "m2"))

	msgs, err := s.ListMessages(ctx, "conv_1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "m3", msgs[1].ID)
	assert.Equal(t, conversation.MessageStatusComplete, msgs[1].Status)

	empty, err := s.ListMessages(ctx, "conv_none")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
