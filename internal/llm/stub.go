package llm

import (
	"context"
	"strings"

	"github.com/ertembiyik/rlm-engine/internal/model"
)

// StubAdapter is a deterministic Adapter for unit tests: Reply maps
// the last user message to a response, or, if nil, echoes the message
// upper-cased.
type StubAdapter struct {
	ModelName string
	Reply     func(messages []model.Message) string
	Calls     int
}

// NewStubAdapter returns a stub bound to modelName that upper-cases
// the last user message unless reply overrides that behavior.
func NewStubAdapter(modelName string, reply func(messages []model.Message) string) *StubAdapter {
	return &StubAdapter{ModelName: modelName, Reply: reply}
}

// Name returns the stub's configured model name.
func (s *StubAdapter) Name() string { return s.ModelName }

// Generate returns the configured reply (or an upper-cased echo of the
// last message) and a usage triple proportional to input/output length.
func (s *StubAdapter) Generate(_ context.Context, messages []model.Message) (string, model.Usage, error) {
	s.Calls++

	var text string
	if s.Reply != nil {
		text = s.Reply(messages)
	} else if len(messages) > 0 {
		text = strings.ToUpper(messages[len(messages)-1].Content)
	}

	usage := model.Usage{
		Calls:        1,
		InputTokens:  int64(totalLen(messages)),
		OutputTokens: int64(len(text)),
	}
	return text, usage, nil
}

func totalLen(messages []model.Message) int {
	n := 0
	for _, m := range messages {
		n += len(m.Content)
	}
	return n
}
