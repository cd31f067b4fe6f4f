package inference

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"jan-server/services/chat-api/internal/domain/conversation"
	"jan-server/services/chat-api/internal/utils/httpclients"
	"jan-server/services/chat-api/internal/utils/httpclients/chat"
)

const summarizePrompt = "Summarize the following conversation in a concise title of at most six words. " +
	"Reply with the title only, without quotes or punctuation at the end."

// maxExcerpt bounds how much of each message goes into the prompt.
const maxExcerpt = 1000

// TitleProvider asks the model for a short conversation title.
type TitleProvider struct {
	client *chat.ChatCompletionClient
	apiKey string
	model  string
	log    zerolog.Logger
}

func NewTitleProvider(cfg Config, model string, log zerolog.Logger) *TitleProvider {
	restyClient := httpclients.NewClient("TitleCompletionClient", cfg.Timeout)
	return &TitleProvider{
		client: chat.NewChatCompletionClient(restyClient, "title", cfg.BaseURL),
		apiKey: cfg.APIKey,
		model:  model,
		log:    log.With().Str("component", "title-provider").Logger(),
	}
}

func (p *TitleProvider) Summarize(ctx context.Context, transcript []conversation.Message) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.apiKey, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: summarizePrompt},
			{Role: openai.ChatMessageRoleUser, Content: renderTranscript(transcript)},
		},
		MaxTokens:   32,
		Temperature: 0.2,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("title completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func renderTranscript(transcript []conversation.Message) string {
	var b strings.Builder
	for _, m := range transcript {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		if r := []rune(content); len(r) > maxExcerpt {
			content = string(r[:maxExcerpt])
		}
		fmt.Fprintf(&b, "%s: %s\n", m.Role, content)
	}
	return b.String()
}
