package driver

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/ertembiyik/rlm-engine/internal/llm"
	"github.com/ertembiyik/rlm-engine/internal/model"
)

type recordingObserver struct {
	mu         sync.Mutex
	metadata   []model.MetadataRecord
	iterations []model.IterationRecord
}

func (r *recordingObserver) ObserveMetadata(rec model.MetadataRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metadata = append(r.metadata, rec)
}

func (r *recordingObserver) ObserveIteration(rec model.IterationRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.iterations = append(r.iterations, rec)
}

func (r *recordingObserver) iterationCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.iterations)
}

// sequencedReplies returns a stub Reply function that returns the n-th
// scripted response on the n-th call (clamped to the last entry).
func sequencedReplies(scripted ...string) func([]model.Message) string {
	call := 0
	return func(_ []model.Message) string {
		idx := call
		if idx >= len(scripted) {
			idx = len(scripted) - 1
		}
		call++
		return scripted[idx]
	}
}

func TestCompleteTrivialFinal(t *testing.T) {
	root := llm.NewStubAdapter("root", sequencedReplies("FINAL(bye)"))
	obs := &recordingObserver{}

	d, err := New(root, WithSandboxConfig(map[string]any{"base_dir": t.TempDir()}), WithLogObserver(obs))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	record, err := d.Complete(context.Background(), model.NewTextContext("hello"), "Say bye")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if record.Response != "bye" {
		t.Fatalf("Response = %q, want %q", record.Response, "bye")
	}
	if obs.iterationCount() != 1 {
		t.Fatalf("iteration count = %d, want 1", obs.iterationCount())
	}
	if len(obs.iterations[0].CodeBlocks) != 0 {
		t.Fatalf("expected zero code blocks, got %d", len(obs.iterations[0].CodeBlocks))
	}
	if root.Calls != 1 {
		t.Fatalf("root.Calls = %d, want 1", root.Calls)
	}
}

func TestCompleteOneBlockPassthrough(t *testing.T) {
	root := llm.NewStubAdapter("root", sequencedReplies(
		"```repl\nprint(1+1)\n```",
		"FINAL_VAR(none)",
	))
	obs := &recordingObserver{}

	d, err := New(root, WithSandboxConfig(map[string]any{"base_dir": t.TempDir()}), WithLogObserver(obs))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	record, err := d.Complete(context.Background(), model.NewTextContext("ctx"), "")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if obs.iterationCount() != 2 {
		t.Fatalf("iteration count = %d, want 2", obs.iterationCount())
	}
	first := obs.iterations[0]
	if len(first.CodeBlocks) != 1 {
		t.Fatalf("expected one code block, got %d", len(first.CodeBlocks))
	}
	if strings.TrimSpace(first.CodeBlocks[0].Result.Stdout) != "2" {
		t.Fatalf("stdout = %q, want 2", first.CodeBlocks[0].Result.Stdout)
	}
	if !strings.Contains(record.Response, "none") {
		t.Fatalf("Response = %q, want diagnostic mentioning %q", record.Response, "none")
	}
}

func TestCompleteSubLMFanOut(t *testing.T) {
	root := llm.NewStubAdapter("root", sequencedReplies(
		"```repl\n"+`result = llm_query_batched(["a","b","c"]); print(JSON.stringify(result));`+"\n```",
		"FINAL(done)",
	))
	sub := llm.NewStubAdapter("sub", nil)
	obs := &recordingObserver{}

	d, err := New(root,
		WithSubModel(sub),
		WithSandboxConfig(map[string]any{"base_dir": t.TempDir()}),
		WithLogObserver(obs))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	record, err := d.Complete(context.Background(), model.NewTextContext("ctx"), "")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if record.Response != "done" {
		t.Fatalf("Response = %q, want done", record.Response)
	}
	if sub.Calls != 3 {
		t.Fatalf("sub.Calls = %d, want 3", sub.Calls)
	}
	first := obs.iterations[0]
	if len(first.CodeBlocks) != 1 {
		t.Fatalf("expected one code block, got %d", len(first.CodeBlocks))
	}
	if strings.TrimSpace(first.CodeBlocks[0].Result.Stdout) != `["A","B","C"]` {
		t.Fatalf("stdout = %q, want [\"A\",\"B\",\"C\"]", first.CodeBlocks[0].Result.Stdout)
	}
	if len(first.CodeBlocks[0].Result.RLMCalls) != 3 {
		t.Fatalf("RLMCalls = %d, want 3", len(first.CodeBlocks[0].Result.RLMCalls))
	}
}

func TestCompleteBudgetExhaustion(t *testing.T) {
	root := llm.NewStubAdapter("root", func(_ []model.Message) string {
		return "still thinking"
	})
	obs := &recordingObserver{}

	d, err := New(root,
		WithMaxIterations(3),
		WithSandboxConfig(map[string]any{"base_dir": t.TempDir()}),
		WithLogObserver(obs))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	record, err := d.Complete(context.Background(), model.NewTextContext("ctx"), "")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if obs.iterationCount() != 3 {
		t.Fatalf("iteration count = %d, want 3", obs.iterationCount())
	}
	if root.Calls != 4 {
		t.Fatalf("root.Calls = %d, want 4 (3 turns + 1 epilogue)", root.Calls)
	}
	if record.Response != "still thinking" {
		t.Fatalf("Response = %q, want the epilogue text", record.Response)
	}
}

func TestSanitizeConfigFiltersSensitiveKeys(t *testing.T) {
	bag := map[string]any{
		"image":      "x",
		"api_key":    "k",
		"AUTH_TOKEN": "t",
		"note":       "ok",
	}
	got := sanitizeConfig(bag)
	want := map[string]any{"image": "x", "note": "ok"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("got[%q] = %v, want %v", k, got[k], v)
		}
	}
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	root := llm.NewStubAdapter("root", nil)
	if _, err := New(root, WithSandboxBackend("nonexistent")); err == nil {
		t.Fatal("expected an error for an unknown sandbox backend")
	}
}

func TestNewRejectsPersistentContainerBackend(t *testing.T) {
	root := llm.NewStubAdapter("root", nil)
	if _, err := New(root, WithSandboxBackend("container"), WithPersistent(true)); err == nil {
		t.Fatal("expected an error: container backend does not support persistence")
	}
}
