package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jan-server/services/chat-api/internal/domain/conversation"
)

func sseServer(t *testing.T, lines []string, capture *openai.ChatCompletionRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		if capture != nil {
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			require.NoError(t, json.Unmarshal(body, capture))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n\n", line)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}))
}

func deltaLine(content string) string {
	return fmt.Sprintf(`data: {"choices":[{"delta":{"content":%q}}]}`, content)
}

func TestProvider_SendStreamsChunksInOrder(t *testing.T) {
	var captured openai.ChatCompletionRequest
	srv := sseServer(t, []string{
		deltaLine("Hel"),
		": keep-alive",
		deltaLine("lo"),
		deltaLine(" there"),
		"data: [DONE]",
		deltaLine("ignored"),
	}, &captured)
	defer srv.Close()

	p := NewProvider(Config{BaseURL: srv.URL + "/v1/", APIKey: "secret", SystemPrompt: "be brief"}, zerolog.Nop())

	var chunks []string
	full, err := p.Send(context.Background(), []conversation.Message{
		{Role: conversation.RoleUser, Content: "hi"},
		{Role: conversation.RoleAssistant, Content: "hello"},
		{Role: conversation.RoleUser, Content: "again"},
	}, "jan-v1", func(s string) { chunks = append(chunks, s) })

	require.NoError(t, err)
	assert.Equal(t, "Hello there", full)
	assert.Equal(t, []string{"Hel", "lo", " there"}, chunks)

	assert.Equal(t, "jan-v1", captured.Model)
	assert.True(t, captured.Stream)
	require.Len(t, captured.Messages, 4)
	assert.Equal(t, openai.ChatMessageRoleSystem, captured.Messages[0].Role)
	assert.Equal(t, openai.ChatMessageRoleAssistant, captured.Messages[2].Role)
	assert.Equal(t, "again", captured.Messages[3].Content)
}

func TestProvider_SendWithoutDoneMarker(t *testing.T) {
	srv := sseServer(t, []string{deltaLine("partial")}, nil)
	defer srv.Close()

	p := NewProvider(Config{BaseURL: srv.URL + "/v1", APIKey: "secret"}, zerolog.Nop())
	full, err := p.Send(context.Background(), nil, "m", nil)

	require.NoError(t, err)
	assert.Equal(t, "partial", full)
}

func TestProvider_SendSkipsMalformedChunks(t *testing.T) {
	srv := sseServer(t, []string{"data: {not json", deltaLine("ok"), "data: [DONE]"}, nil)
	defer srv.Close()

	p := NewProvider(Config{BaseURL: srv.URL + "/v1", APIKey: "secret"}, zerolog.Nop())
	full, err := p.Send(context.Background(), nil, "m", nil)

	require.NoError(t, err)
	assert.Equal(t, "ok", full)
}

func TestProvider_SendErrorCarriesStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
	}))
	defer srv.Close()

	p := NewProvider(Config{BaseURL: srv.URL + "/v1", APIKey: "secret"}, zerolog.Nop())
	called := false
	_, err := p.Send(context.Background(), nil, "m", func(string) { called = true })

	require.Error(t, err)
	assert.False(t, called)
	msg := strings.ToLower(err.Error())
	assert.Contains(t, msg, "429")
	assert.Contains(t, msg, "rate limit exceeded")
}

func TestTitleProvider_Summarize(t *testing.T) {
	var captured openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"  Paris Trip Planning \n"}}]}`))
	}))
	defer srv.Close()

	p := NewTitleProvider(Config{BaseURL: srv.URL + "/v1", APIKey: "secret"}, "title-model", zerolog.Nop())
	got, err := p.Summarize(context.Background(), []conversation.Message{
		{Role: conversation.RoleUser, Content: "plan a trip to paris"},
		{Role: conversation.RoleAssistant, Content: "sure"},
	})

	require.NoError(t, err)
	assert.Equal(t, "Paris Trip Planning", got)
	assert.Equal(t, "title-model", captured.Model)
	assert.False(t, captured.Stream)
	require.Len(t, captured.Messages, 2)
	assert.Contains(t, captured.Messages[1].Content, "user: plan a trip to paris")
}

func TestTitleProvider_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	p := NewTitleProvider(Config{BaseURL: srv.URL, APIKey: "secret"}, "m", zerolog.Nop())
	_, err := p.Summarize(context.Background(), nil)
	require.Error(t, err)
}
