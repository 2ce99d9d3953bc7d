// Package model defines the shared data types that flow between the
// iteration driver, the sandbox backends, and the LM router: context
// payloads, REPL state and results, usage summaries, and the canonical
// dict-form records handed to observers.
package model

import (
	"encoding/json"
	"fmt"
)

// Message is a single (role, text) turn in the history sent to the LM.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ContextShape tags the three payload shapes the engine accepts.
type ContextShape string

const (
	ShapeText       ContextShape = "text"
	ShapeSequence   ContextShape = "sequence"
	ShapeCollection ContextShape = "collection"
)

// ContextPayload is the caller-supplied value the query operates over:
// plain text, an ordered sequence of arbitrary values, or a keyed
// collection of arbitrary values.
type ContextPayload struct {
	Text       string
	Sequence   []any
	Collection map[string]any
}

// NewTextContext wraps plain text as a context payload.
func NewTextContext(text string) ContextPayload {
	return ContextPayload{Text: text}
}

// NewSequenceContext wraps an ordered sequence as a context payload.
func NewSequenceContext(seq []any) ContextPayload {
	return ContextPayload{Sequence: seq}
}

// NewCollectionContext wraps a keyed collection as a context payload.
func NewCollectionContext(coll map[string]any) ContextPayload {
	return ContextPayload{Collection: coll}
}

// Shape reports which of the three payload shapes is populated.
func (p ContextPayload) Shape() ContextShape {
	switch {
	case p.Sequence != nil:
		return ShapeSequence
	case p.Collection != nil:
		return ShapeCollection
	default:
		return ShapeText
	}
}

// Value returns the payload as a plain Go value suitable for JSON
// encoding or printable-string fallback.
func (p ContextPayload) Value() any {
	switch p.Shape() {
	case ShapeSequence:
		return p.Sequence
	case ShapeCollection:
		return p.Collection
	default:
		return p.Text
	}
}

// QueryMetadata is derived from a ContextPayload: total character
// length, per-chunk character lengths, and the shape tag. It is
// read-only and inserted verbatim into the system prompt.
type QueryMetadata struct {
	Shape        ContextShape `json:"shape"`
	TotalLength  int          `json:"total_length"`
	ChunkLengths []int        `json:"chunk_lengths"`
}

// DeriveQueryMetadata computes query metadata for a context payload.
func DeriveQueryMetadata(p ContextPayload) QueryMetadata {
	switch p.Shape() {
	case ShapeSequence:
		lengths := make([]int, len(p.Sequence))
		total := 0
		for i, v := range p.Sequence {
			n := lengthOf(v)
			lengths[i] = n
			total += n
		}
		return QueryMetadata{Shape: ShapeSequence, TotalLength: total, ChunkLengths: lengths}
	case ShapeCollection:
		lengths := make([]int, 0, len(p.Collection))
		total := 0
		for _, v := range p.Collection {
			n := lengthOf(v)
			lengths = append(lengths, n)
			total += n
		}
		return QueryMetadata{Shape: ShapeCollection, TotalLength: total, ChunkLengths: lengths}
	default:
		n := len(p.Text)
		return QueryMetadata{Shape: ShapeText, TotalLength: n, ChunkLengths: []int{n}}
	}
}

func lengthOf(v any) int {
	switch val := v.(type) {
	case string:
		return len(val)
	case []byte:
		return len(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return len(fmt.Sprintf("%v", val))
		}
		return len(b)
	}
}

// Usage is a per-model usage triple: call count, input tokens, output
// tokens. It is monotonic for the lifetime of one router instance.
type Usage struct {
	Calls        int64 `json:"calls"`
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Add accumulates another usage triple into this one.
func (u *Usage) Add(other Usage) {
	u.Calls += other.Calls
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// UsageSummary maps model name to its accumulated usage triple.
type UsageSummary map[string]Usage

// Merge folds another summary's entries into this one, mutating and
// returning the receiver.
func (s UsageSummary) Merge(other UsageSummary) UsageSummary {
	if s == nil {
		s = UsageSummary{}
	}
	for model, u := range other {
		entry := s[model]
		entry.Add(u)
		s[model] = entry
	}
	return s
}

// SubLMCall records one sub-LM call issued from inside a sandbox
// execution: a unique call ID, the model used, the prompt as sent, the
// response text, a per-model usage summary for that single call, and its
// duration. CallID lets an observer correlate a record here with the same
// call's trace span.
type SubLMCall struct {
	CallID         string       `json:"call_id"`
	Model          string       `json:"model"`
	Prompt         any          `json:"prompt"`
	Response       string       `json:"response"`
	Usage          UsageSummary `json:"usage"`
	DurationSecond float64      `json:"duration_seconds"`
}

// REPLResult is produced by one sandbox execution: captured stdout and
// stderr, the post-execution snapshot of non-reserved identifiers, wall
// clock duration, and the sub-LM calls made during the execution.
type REPLResult struct {
	Stdout         string         `json:"stdout"`
	Stderr         string         `json:"stderr"`
	Locals         map[string]any `json:"locals"`
	DurationSecond float64        `json:"duration_seconds"`
	RLMCalls       []SubLMCall    `json:"rlm_calls"`
}

// CodeBlock pairs a source string with the REPLResult of executing it.
type CodeBlock struct {
	Source string     `json:"source"`
	Result REPLResult `json:"result"`
}

// IterationRecord is the history-at-start, the raw LM response, the
// code blocks executed from that response, an optional final answer,
// and the turn's wall-clock duration.
type IterationRecord struct {
	Sequence       int         `json:"sequence"`
	History        []Message   `json:"history"`
	Response       string      `json:"response"`
	CodeBlocks     []CodeBlock `json:"code_blocks"`
	FinalAnswer    string      `json:"final_answer,omitempty"`
	DurationSecond float64     `json:"duration_seconds"`
}

// Terminal reports whether this iteration ended the loop.
func (r IterationRecord) Terminal() bool {
	return r.FinalAnswer != ""
}

// MetadataRecord is emitted once per completion before iteration
// records begin.
type MetadataRecord struct {
	RootModel        string         `json:"root_model"`
	MaxDepth         int            `json:"max_depth"`
	MaxIterations    int            `json:"max_iterations"`
	SandboxBackend   string         `json:"sandbox_backend"`
	Config           map[string]any `json:"config"`
	SubModels        []string       `json:"sub_models,omitempty"`
}

// CompletionRecord is the return value of a completion call.
type CompletionRecord struct {
	RootModel       string       `json:"root_model"`
	Prompt          any          `json:"prompt"`
	Response        string       `json:"response"`
	UsageSummary    UsageSummary `json:"usage_summary"`
	ExecutionSecond float64      `json:"execution_time"`
}
