package chat

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"
	"resty.dev/v3"

	"jan-server/services/chat-api/internal/infrastructure/logger"
	"jan-server/services/chat-api/internal/utils/platformerrors"
	"jan-server/services/chat-api/internal/utils/redact"
)

const (
	channelBufferSize    = 100
	dataPrefix           = "data: "
	doneMarker           = "[DONE]"
	scannerInitialBuffer = 12 * 1024        // 12KB
	scannerMaxBuffer     = 10 * 1024 * 1024 // 10MB
)

type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ChoiceDelta struct {
	Content string `json:"content"`
}

type StreamChoice struct {
	Delta ChoiceDelta `json:"delta"`
}

// StreamResult is what a finished stream produced.
type StreamResult struct {
	Content string
	Usage   *TokenUsage
}

type ChatCompletionClient struct {
	client  *resty.Client
	baseURL string
	name    string
}

func NewChatCompletionClient(client *resty.Client, name, baseURL string) *ChatCompletionClient {
	return &ChatCompletionClient{
		client:  client,
		baseURL: normalizeBaseURL(baseURL),
		name:    name,
	}
}

func (c *ChatCompletionClient) CreateChatCompletion(ctx context.Context, apiKey string, request openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
	request.Stream = false
	var respBody openai.ChatCompletionResponse
	resp, err := c.prepareRequest(ctx, apiKey).
		SetBody(request).
		SetResult(&respBody).
		Post(c.endpoint("/chat/completions"))
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, c.errorFromResponse(ctx, resp, "request failed")
	}
	return &respBody, nil
}

// StreamChatCompletion posts a streaming request and calls onDelta for every
// content fragment, on the caller's goroutine, in arrival order.
func (c *ChatCompletionClient) StreamChatCompletion(ctx context.Context, apiKey string, request openai.ChatCompletionRequest, onDelta func(string)) (*StreamResult, error) {
	request.Stream = true
	request.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	resp, err := c.doStreamingRequest(ctx, apiKey, request)
	if err != nil {
		return nil, err
	}

	lines := make(chan string, channelBufferSize)
	errChan := make(chan error, 1)
	stop := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go c.readLines(resp.RawResponse.Body, lines, errChan, stop, &wg)
	defer func() {
		close(stop)
		wg.Wait()
	}()

	var (
		content strings.Builder
		usage   *TokenUsage
	)
	for line := range lines {
		data, found := strings.CutPrefix(line, dataPrefix)
		if !found {
			continue
		}
		data = strings.TrimSpace(data)
		if data == doneMarker {
			break
		}
		choice, chunkUsage := c.processStreamChunk(data)
		if chunkUsage != nil {
			usage = chunkUsage
		}
		if choice != nil && choice.Delta.Content != "" {
			content.WriteString(choice.Delta.Content)
			if onDelta != nil {
				onDelta(choice.Delta.Content)
			}
		}
	}

	select {
	case err := <-errChan:
		return nil, platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "streaming error")
	default:
	}

	return &StreamResult{Content: content.String(), Usage: usage}, nil
}

// readLines scans the SSE body until EOF, an error, or stop. It closes lines when done.
func (c *ChatCompletionClient) readLines(body io.ReadCloser, lines chan<- string, errChan chan<- error, stop <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	defer close(lines)
	defer func() {
		if closeErr := body.Close(); closeErr != nil {
			log := logger.GetLogger()
			log.Error().Err(closeErr).Str("client", c.name).Msg("unable to close response body")
		}
	}()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, scannerInitialBuffer), scannerMaxBuffer)
	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-stop:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		errChan <- err
	}
}

func (c *ChatCompletionClient) processStreamChunk(data string) (*StreamChoice, *TokenUsage) {
	var streamData struct {
		Choices []StreamChoice `json:"choices"`
		Usage   *TokenUsage    `json:"usage"`
	}
	if err := json.Unmarshal([]byte(data), &streamData); err != nil {
		log := logger.GetLogger()
		log.Error().Err(err).Str("client", c.name).Str("data", data).Msg("failed to parse stream chunk JSON")
		return nil, nil
	}

	result := &StreamChoice{}
	for _, choice := range streamData.Choices {
		result.Delta.Content += choice.Delta.Content
	}
	return result, streamData.Usage
}

func (c *ChatCompletionClient) prepareRequest(ctx context.Context, apiKey string) *resty.Request {
	req := c.client.R().SetContext(ctx)
	req.SetHeader("Content-Type", "application/json")
	if strings.TrimSpace(apiKey) != "" {
		req.SetHeader("Authorization", fmt.Sprintf("Bearer %s", apiKey))
	}
	return req
}

func (c *ChatCompletionClient) endpoint(path string) string {
	if c.baseURL == "" {
		return path
	}
	if strings.HasPrefix(path, "/") {
		return c.baseURL + path
	}
	return c.baseURL + "/" + path
}

func (c *ChatCompletionClient) doStreamingRequest(ctx context.Context, apiKey string, request openai.ChatCompletionRequest) (*resty.Response, error) {
	resp, err := c.prepareRequest(ctx, apiKey).
		SetBody(request).
		SetHeader("Accept", "text/event-stream").
		SetHeader("Accept-Encoding", "identity").
		SetDoNotParseResponse(true).
		Post(c.endpoint("/chat/completions"))
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, c.errorFromResponse(ctx, resp, "streaming request failed")
	}
	if resp.RawResponse == nil || resp.RawResponse.Body == nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, "streaming request failed: empty response body", nil, "inference.empty_body")
	}
	return resp, nil
}

// errorFromResponse keeps the status code and the PII-masked body in the
// message so callers can classify the failure.
func (c *ChatCompletionClient) errorFromResponse(ctx context.Context, resp *resty.Response, message string) error {
	message = fmt.Sprintf("%s: upstream status %d", message, resp.StatusCode())
	if !resp.Request.DoNotParseResponse {
		if trimmed := strings.TrimSpace(resp.String()); trimmed != "" {
			message = fmt.Sprintf("%s: %s", message, redact.Text(trimmed))
		}
		return platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, message, nil, "inference.upstream_status")
	}
	if resp.RawResponse == nil || resp.RawResponse.Body == nil {
		return platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, message, nil, "inference.upstream_status")
	}
	defer resp.RawResponse.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.RawResponse.Body, 64*1024))
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, message, err, "inference.upstream_status")
	}
	if trimmed := strings.TrimSpace(string(body)); trimmed != "" {
		message = fmt.Sprintf("%s: %s", message, redact.Text(trimmed))
	}
	return platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, message, nil, "inference.upstream_status")
}

func (c *ChatCompletionClient) BaseURL() string {
	return c.baseURL
}

func normalizeBaseURL(base string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/")
}
