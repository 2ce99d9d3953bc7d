package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/ertembiyik/rlm-engine/internal/model"
)

func TestStubAdapterUppercaseEcho(t *testing.T) {
	stub := NewStubAdapter("stub-model", nil)
	text, usage, err := stub.Generate(context.Background(), []model.Message{
		{Role: model.RoleUser, Content: "hello"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "HELLO" {
		t.Fatalf("text = %q, want HELLO", text)
	}
	if usage.Calls != 1 {
		t.Fatalf("calls = %d, want 1", usage.Calls)
	}
	if stub.Calls != 1 {
		t.Fatalf("adapter.Calls = %d, want 1", stub.Calls)
	}
}

func TestStubAdapterCustomReply(t *testing.T) {
	stub := NewStubAdapter("stub-model", func(messages []model.Message) string {
		return strings.ToUpper(messages[0].Content) + "!"
	})
	text, _, err := stub.Generate(context.Background(), []model.Message{
		{Role: model.RoleUser, Content: "a"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "A!" {
		t.Fatalf("text = %q, want A!", text)
	}
}
