package deepseek

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/christophervi/secainw-backend/internal/domain/ai"
)

const (
	defaultBaseURL = "https://api.deepseek.com/v1"
	maxTokens      = 2048
)

// Client is the DeepSeek completion backend. DeepSeek exposes an
// OpenAI-compatible API, so it reuses the go-openai client with a custom
// base URL.
type Client struct {
	api   *openai.Client
	Model string
}

func NewClient(apiKey, model, baseURL string) *Client {
	if model == "" {
		model = "deepseek-reasoner"
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &Client{api: openai.NewClientWithConfig(cfg), Model: model}
}

func (c *Client) Name() string { return c.Model }

func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ai.ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", ai.ErrUnavailable)
	}
	return resp.Choices[0].Message.Content, nil
}
