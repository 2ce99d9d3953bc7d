package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ertembiyik/rlm-engine/internal/backoff"
	"github.com/ertembiyik/rlm-engine/internal/model"
)

// AnthropicAdapter is an Adapter backed by the Anthropic Messages API.
// Unlike a chat-facing provider, the router only ever needs a single
// non-streaming completion per call, so this adapter skips the
// streaming/tool-use machinery entirely.
type AnthropicAdapter struct {
	client    anthropic.Client
	name      string
	maxTokens int64
	retries   int
}

// AnthropicOption configures an AnthropicAdapter at construction.
type AnthropicOption func(*AnthropicAdapter)

// WithAnthropicMaxTokens overrides the default max_tokens budget.
func WithAnthropicMaxTokens(n int64) AnthropicOption {
	return func(a *AnthropicAdapter) { a.maxTokens = n }
}

// WithAnthropicRetries overrides the default retry attempt count.
func WithAnthropicRetries(n int) AnthropicOption {
	return func(a *AnthropicAdapter) { a.retries = n }
}

// NewAnthropicAdapter builds an adapter bound to modelName, authenticating
// with apiKey.
func NewAnthropicAdapter(modelName, apiKey string, opts ...AnthropicOption) (*AnthropicAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic adapter: API key is required")
	}
	if modelName == "" {
		return nil, fmt.Errorf("anthropic adapter: model name is required")
	}

	a := &AnthropicAdapter{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		name:      modelName,
		maxTokens: 4096,
		retries:   3,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Name returns the Anthropic model identifier this adapter answers to.
func (a *AnthropicAdapter) Name() string { return a.name }

// Generate sends messages as a single non-streaming Messages.New call.
func (a *AnthropicAdapter) Generate(ctx context.Context, messages []model.Message) (string, model.Usage, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.name),
		MaxTokens: a.maxTokens,
		Messages:  convertMessages(messages),
	}
	if system := systemText(messages); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	result, err := backoff.RetryWithBackoffIf(ctx, backoff.DefaultPolicy(), a.retries,
		func(err error) bool { return ClassifyError(err).IsRetryable() },
		func(int) (*anthropic.Message, error) {
			return a.client.Messages.New(ctx, params)
		})
	if err != nil {
		return "", model.Usage{}, NewAdapterError("anthropic", a.name, err)
	}

	msg := result.Value
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	usage := model.Usage{
		Calls:        1,
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}
	return text, usage, nil
}

func systemText(messages []model.Message) string {
	for _, m := range messages {
		if m.Role == model.RoleSystem {
			return m.Content
		}
	}
	return ""
}

func convertMessages(messages []model.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case model.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case model.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		case model.RoleSystem:
			// system messages are hoisted into params.System, not the
			// turn list.
		}
	}
	return out
}
