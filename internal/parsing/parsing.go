// Package parsing extracts executable code blocks and terminating
// markers from LM output, and renders execution results back into
// chat-turn messages.
package parsing

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ertembiyik/rlm-engine/internal/model"
)

// maxRenderedResult is the clamp applied to a rendered execution
// result before it is appended to the history as a user-role message.
const maxRenderedResult = 20000

var replFencePattern = regexp.MustCompile("(?s)```repl\\s*\\n?(.*?)```")

// ExtractCodeBlocks returns the ordered list of source strings found
// inside ```repl fenced blocks. Fences are matched non-greedily; code
// content has its outer whitespace stripped. Nested fences are not
// supported.
func ExtractCodeBlocks(text string) []string {
	matches := replFencePattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}

var (
	finalVarPattern = regexp.MustCompile(`(?m)^\s*FINAL_VAR\(\s*(.*?)\s*\)\s*$`)
	finalPattern    = regexp.MustCompile(`(?ms)^FINAL\((.*)\)$`)
)

// FinalVarHookFunc executes the FINAL_VAR hook against a sandbox
// session and returns the captured stdout (or stderr if stdout was
// empty) as the final answer.
type FinalVarHookFunc func(identifier string) (stdout, stderr string, err error)

// Marker is the terminating marker detected in an LM response, if any.
type Marker struct {
	Found  bool
	Answer string
}

// DetectMarker scans text for, in priority order, a FINAL_VAR(name)
// line and then a FINAL(...) line. Only the first marker found (in
// pattern-priority order) terminates the loop. When a FINAL_VAR is
// found and hook is non-nil, the identifier is resolved through the
// sandbox hook; without a hook, detection succeeds but no answer is
// produced (per the spec's retained open-question semantics).
func DetectMarker(text string, hook FinalVarHookFunc) Marker {
	if m := finalVarPattern.FindStringSubmatch(text); m != nil {
		name := stripQuotes(strings.TrimSpace(m[1]))
		if hook == nil {
			return Marker{Found: true, Answer: ""}
		}
		stdout, stderr, err := hook(name)
		if err != nil {
			return Marker{Found: true, Answer: err.Error()}
		}
		if stdout != "" {
			return Marker{Found: true, Answer: stdout}
		}
		return Marker{Found: true, Answer: stderr}
	}

	if m := finalPattern.FindStringSubmatch(text); m != nil {
		return Marker{Found: true, Answer: strings.TrimSpace(m[1])}
	}

	return Marker{}
}

func stripQuotes(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// reservedIdentifier reports whether name is a reserved REPL
// identifier (leading underscore), never persisted or surfaced.
func reservedIdentifier(name string) bool {
	return strings.HasPrefix(name, "_")
}

// displayableLocals filters a post-execution snapshot down to
// non-reserved identifiers whose values are strings, numbers, booleans,
// or structured collections, returning their names in sorted order.
func displayableLocals(locals map[string]any) []string {
	names := make([]string, 0, len(locals))
	for name, val := range locals {
		if reservedIdentifier(name) {
			continue
		}
		if !isDisplayableValue(val) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func isDisplayableValue(v any) bool {
	switch v.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64,
		[]any, map[string]any:
		return true
	default:
		return false
	}
}

// RenderREPLResult concatenates stdout, stderr, and a one-line listing
// of displayable identifier names, each on its own line when present,
// and clamps the result to maxRenderedResult characters. Empty results
// render as the literal text "No output".
func RenderREPLResult(r model.REPLResult) string {
	var lines []string
	if r.Stdout != "" {
		lines = append(lines, r.Stdout)
	}
	if r.Stderr != "" {
		lines = append(lines, r.Stderr)
	}
	if names := displayableLocals(r.Locals); len(names) > 0 {
		lines = append(lines, "vars: "+strings.Join(names, ", "))
	}

	rendered := strings.Join(lines, "\n")
	if rendered == "" {
		return "No output"
	}
	return clamp(rendered)
}

func clamp(s string) string {
	if len(s) <= maxRenderedResult {
		return s
	}
	elided := len(s) - maxRenderedResult
	return s[:maxRenderedResult] + fmt.Sprintf("\n... [%d chars elided]", elided)
}

// RenderIteration produces the messages to append to the history for
// one iteration record: an assistant message with the verbatim LM
// response, then one user message per executed code block containing
// the fenced code followed by its rendered result.
func RenderIteration(response string, blocks []model.CodeBlock) []model.Message {
	msgs := make([]model.Message, 0, len(blocks)+1)
	msgs = append(msgs, model.Message{Role: model.RoleAssistant, Content: response})
	for _, b := range blocks {
		content := fmt.Sprintf("```repl\n%s\n```\n%s", b.Source, RenderREPLResult(b.Result))
		msgs = append(msgs, model.Message{Role: model.RoleUser, Content: content})
	}
	return msgs
}
