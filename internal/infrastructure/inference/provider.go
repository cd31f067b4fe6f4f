// Package inference talks to an OpenAI-compatible model endpoint.
package inference

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"jan-server/services/chat-api/internal/domain/conversation"
	"jan-server/services/chat-api/internal/utils/httpclients"
	"jan-server/services/chat-api/internal/utils/httpclients/chat"
)

var tracer = otel.Tracer("jan-server/chat-api/inference")

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// SystemPrompt is prepended to every streamed transcript when set.
	SystemPrompt string
}

// Provider streams assistant replies.
type Provider struct {
	client       *chat.ChatCompletionClient
	apiKey       string
	systemPrompt string
	log          zerolog.Logger
}

func NewProvider(cfg Config, log zerolog.Logger) *Provider {
	// No client timeout: a turn waits for the provider as long as it takes.
	restyClient := httpclients.NewClient("ChatCompletionClient", 0)
	return &Provider{
		client:       chat.NewChatCompletionClient(restyClient, "chat", cfg.BaseURL),
		apiKey:       cfg.APIKey,
		systemPrompt: strings.TrimSpace(cfg.SystemPrompt),
		log:          log.With().Str("component", "inference").Logger(),
	}
}

// Send streams a reply for transcript, calling onChunk for each fragment.
func (p *Provider) Send(ctx context.Context, transcript []conversation.Message, model string, onChunk func(string)) (string, error) {
	ctx, span := tracer.Start(ctx, "inference.Send")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", model),
		attribute.Int("llm.transcript_len", len(transcript)),
	)

	messages := toOpenAIMessages(transcript)
	if p.systemPrompt != "" {
		messages = append([]openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleSystem, Content: p.systemPrompt}}, messages...)
	}

	result, err := p.client.StreamChatCompletion(ctx, p.apiKey, openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}, onChunk)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stream failed")
		p.log.Warn().Err(err).Str("model", model).Msg("chat completion stream failed")
		return "", err
	}

	if result.Usage != nil {
		span.SetAttributes(
			attribute.Int("llm.prompt_tokens", result.Usage.PromptTokens),
			attribute.Int("llm.completion_tokens", result.Usage.CompletionTokens),
		)
	}
	return result.Content, nil
}

func toOpenAIMessages(transcript []conversation.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(transcript))
	for _, m := range transcript {
		role := openai.ChatMessageRoleUser
		if m.Role == conversation.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}
