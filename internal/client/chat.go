package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// UpstreamChat is the upstream label used in errors, logs and metrics.
const UpstreamChat = "chat"

const (
	DefaultChatBaseURL = "https://api.openai.com/v1"
	DefaultChatModel   = "gpt-4o-mini"
)

// ChatResponder answers one system + user prompt pair with plain text.
type ChatResponder interface {
	Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

type chatMessage struct {
	Role    string  `json:"role"`
	Content *string `json:"content"`
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// OpenAIChatClient calls the chat completions endpoint.
type OpenAIChatClient struct {
	apiKey   string
	endpoint string
	model    string
	upstream *upstream
}

// NewOpenAIChatClient returns a chat client. An empty apiKey is accepted; the upstream
// rejects it at call time.
func NewOpenAIChatClient(apiKey, baseURL, model string, timeout time.Duration) (*OpenAIChatClient, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultChatBaseURL
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultChatModel
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("chat API timeout must be positive")
	}
	return &OpenAIChatClient{
		apiKey:   apiKey,
		endpoint: strings.TrimRight(baseURL, "/") + "/chat/completions",
		model:    model,
		upstream: newUpstream(UpstreamChat, timeout),
	}, nil
}

// SetCircuitBreaker routes calls through b. Pass nil to disable.
func (c *OpenAIChatClient) SetCircuitBreaker(b *Breaker) {
	c.upstream.breaker = b
}

// Chat sends exactly one completion request and returns the first choice's text unmodified.
func (c *OpenAIChatClient) Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	payload, err := json.Marshal(chatCompletionRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: &systemPrompt},
			{Role: "user", Content: &userPrompt},
		},
	})
	if err != nil {
		return "", &UpstreamError{Upstream: UpstreamChat, Kind: KindLogic, Err: fmt.Errorf("encode request: %w", err)}
	}

	body, err := c.upstream.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return "", err
	}

	var out chatCompletionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", logicError(UpstreamChat, "decode chat completion: %v", err)
	}
	if len(out.Choices) == 0 {
		return "", logicError(UpstreamChat, "no choices returned")
	}
	content := out.Choices[0].Message.Content
	if content == nil {
		return "", logicError(UpstreamChat, "first choice has no text content")
	}
	return *content, nil
}
