package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jan-server/services/chat-api/internal/domain/conversation"
	"jan-server/services/chat-api/internal/domain/persistence"
	"jan-server/services/chat-api/internal/domain/session"
	"jan-server/services/chat-api/internal/domain/turn"
	"jan-server/services/chat-api/internal/infrastructure/memstore"
)

type scriptedProvider struct{}

func (scriptedProvider) Send(_ context.Context, transcript []conversation.Message, _ string, onChunk func(string)) (string, error) {
	last := transcript[len(transcript)-1].Content
	onChunk("you said ")
	onChunk(last)
	return "you said " + last, nil
}

func newTestSession(t *testing.T) *session.Session {
	t.Helper()
	registry, err := session.NewRegistry(session.Dependencies{
		Store:    persistence.NewGateway(memstore.New(), zerolog.Nop()),
		Provider: scriptedProvider{},
		Logger:   zerolog.Nop(),
	}, session.Config{Capacity: 1, Turn: turn.Config{DefaultModel: "m1", AllowedModels: []string{"m1"}}})
	require.NoError(t, err)
	sess, err := registry.Create(turn.Identity{AnonymousKey: "cli:test"})
	require.NoError(t, err)
	return sess
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		want command
		ok   bool
	}{
		{line: "/new", want: command{name: "new"}, ok: true},
		{line: "  /Select  conv_1 ", want: command{name: "select", arg: "conv_1"}, ok: true},
		{line: "/model m2", want: command{name: "model", arg: "m2"}, ok: true},
		{line: "hello /new", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := parseCommand(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestREPL_Run(t *testing.T) {
	color.NoColor = true
	sess := newTestSession(t)
	in := strings.NewReader("hello\n/list\n/model nope\n/regen\n/bogus\n/exit\nnever sent\n")
	var out bytes.Buffer

	require.NoError(t, newREPL(sess, in, &out).Run(context.Background()))

	text := out.String()
	assert.Contains(t, text, "you said hello")
	assert.Contains(t, text, "* conv_")
	assert.Contains(t, text, turn.ErrUnknownModel.Error())
	assert.Contains(t, text, "unknown command /bogus")
	assert.NotContains(t, text, "never sent")
	assert.Equal(t, 2, strings.Count(text, "[m1,"))
}

func TestREPL_StopsAtEOF(t *testing.T) {
	color.NoColor = true
	var out bytes.Buffer
	require.NoError(t, newREPL(newTestSession(t), strings.NewReader(""), &out).Run(context.Background()))
	assert.Contains(t, out.String(), "model: m1")
}
