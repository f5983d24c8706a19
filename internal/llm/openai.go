package llm

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

// ErrEmptyCompletion is returned when the provider answers without choices.
var ErrEmptyCompletion = errors.New("llm: completion returned no choices")

// Client is the completion function used by the intake orchestrator.  It
// sends one system prompt and one user prompt and returns the assistant text
// with surrounding whitespace removed.
type Client interface {
	Complete(ctx context.Context, system, user string, temperature float32) (string, error)
}

// Options configures an OpenAIClient.
type Options struct {
	APIKey  string
	Model   string // defaults to DefaultModel
	BaseURL string // optional, for proxies and tests
}

// OpenAIClient calls the OpenAI chat completion API.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient constructs an OpenAI-backed completion client.
func NewOpenAIClient(opts Options) *OpenAIClient {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Model returns the chat model name.
func (c *OpenAIClient) Model() string { return c.model }

// Complete sends the system and user prompts to the chat completion API and
// returns the trimmed assistant response.
func (c *OpenAIClient) Complete(ctx context.Context, system, user string, temperature float32) (string, error) {
	if c.client == nil {
		return "", errors.New("llm: openai client not initialized")
	}
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
