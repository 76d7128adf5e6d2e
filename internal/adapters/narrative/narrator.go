// Package narrative turns a computed plan into a short race briefing.
// Narration is best effort: callers keep the plan when it fails.
package narrative

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultModel     = openai.GPT4oMini
	defaultTimeout   = 30 * time.Second
	defaultMaxTokens = 400

	systemPrompt = "You are an experienced triathlon coach. Write a concise race-day briefing " +
		"of at most five short paragraphs from the plan you are given. Use only the numbers " +
		"provided and do not invent targets."
)

// OpenAI narrates through a chat completion model.
type OpenAI struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
}

// NewOpenAI creates an OpenAI narrator for apiKey.
func NewOpenAI(apiKey string, opts ...Option) *OpenAI {
	o := &options{
		model:       DefaultModel,
		maxTokens:   defaultMaxTokens,
		temperature: 0.4,
		timeout:     defaultTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	cfg := openai.DefaultConfig(apiKey)
	if o.baseURL != "" {
		cfg.BaseURL = o.baseURL
	}
	if o.httpClient != nil {
		cfg.HTTPClient = o.httpClient
	}
	return &OpenAI{
		client:      openai.NewClientWithConfig(cfg),
		model:       o.model,
		maxTokens:   o.maxTokens,
		temperature: o.temperature,
		timeout:     o.timeout,
	}
}

// Narrate asks the model for a briefing of s.
func (n *OpenAI) Narrate(ctx context.Context, s Summary) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	resp, err := n.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: n.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: s.Prompt()},
		},
		MaxCompletionTokens: n.maxTokens,
		Temperature:         n.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// Disabled never narrates.
type Disabled struct{}

func (Disabled) Narrate(context.Context, Summary) (string, error) { return "", ErrDisabled }

// Template writes a fixed-form briefing without a model. The CLI uses it.
type Template struct{}

func (Template) Narrate(_ context.Context, s Summary) (string, error) {
	return strings.TrimSpace(s.Prompt()), nil
}
