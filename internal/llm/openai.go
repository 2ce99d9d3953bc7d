package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ertembiyik/rlm-engine/internal/backoff"
	"github.com/ertembiyik/rlm-engine/internal/model"
)

// OpenAIAdapter is an Adapter backed by the OpenAI-compatible chat
// completions API (also used for OpenAI-compatible sub-model
// providers), exercised as the router's second, non-Anthropic model.
type OpenAIAdapter struct {
	client    *openai.Client
	name      string
	maxTokens int
	retries   int
}

// OpenAIOption configures an OpenAIAdapter at construction.
type OpenAIOption func(*openai.ClientConfig, *OpenAIAdapter)

// WithOpenAIBaseURL points the client at an OpenAI-compatible endpoint
// other than the default OpenAI API.
func WithOpenAIBaseURL(baseURL string) OpenAIOption {
	return func(cfg *openai.ClientConfig, _ *OpenAIAdapter) {
		cfg.BaseURL = baseURL
	}
}

// WithOpenAIMaxTokens overrides the default max_tokens budget.
func WithOpenAIMaxTokens(n int) OpenAIOption {
	return func(_ *openai.ClientConfig, a *OpenAIAdapter) { a.maxTokens = n }
}

// NewOpenAIAdapter builds an adapter bound to modelName, authenticating
// with apiKey.
func NewOpenAIAdapter(modelName, apiKey string, opts ...OpenAIOption) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai adapter: API key is required")
	}
	if modelName == "" {
		return nil, fmt.Errorf("openai adapter: model name is required")
	}

	a := &OpenAIAdapter{
		name:      modelName,
		maxTokens: 4096,
		retries:   3,
	}
	cfg := openai.DefaultConfig(apiKey)
	for _, opt := range opts {
		opt(&cfg, a)
	}
	a.client = openai.NewClientWithConfig(cfg)
	return a, nil
}

// Name returns the model identifier this adapter answers to.
func (a *OpenAIAdapter) Name() string { return a.name }

// Generate sends messages as a single chat completion request.
func (a *OpenAIAdapter) Generate(ctx context.Context, messages []model.Message) (string, model.Usage, error) {
	req := openai.ChatCompletionRequest{
		Model:     a.name,
		MaxTokens: a.maxTokens,
		Messages:  convertOpenAIMessages(messages),
	}

	result, err := backoff.RetryWithBackoffIf(ctx, backoff.DefaultPolicy(), a.retries,
		func(err error) bool { return ClassifyError(err).IsRetryable() },
		func(int) (openai.ChatCompletionResponse, error) {
			return a.client.CreateChatCompletion(ctx, req)
		})
	if err != nil {
		return "", model.Usage{}, NewAdapterError("openai", a.name, err)
	}

	resp := result.Value
	var text string
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	}

	usage := model.Usage{
		Calls:        1,
		InputTokens:  int64(resp.Usage.PromptTokens),
		OutputTokens: int64(resp.Usage.CompletionTokens),
	}
	return text, usage, nil
}

func convertOpenAIMessages(messages []model.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case model.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case model.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}
