package parsing

import (
	"strings"
	"testing"

	"github.com/ertembiyik/rlm-engine/internal/model"
)

func TestExtractCodeBlocksOrderedCount(t *testing.T) {
	text := "noise\n```repl\nprint(1)\n```\nmore noise\n```repl\n  print(2)  \n```\ntrailing"
	blocks := ExtractCodeBlocks(text)
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(blocks))
	}
	if blocks[0] != "print(1)" || blocks[1] != "print(2)" {
		t.Fatalf("blocks = %#v", blocks)
	}
}

func TestExtractCodeBlocksNone(t *testing.T) {
	if blocks := ExtractCodeBlocks("just some text, no fences"); blocks != nil {
		t.Fatalf("got %#v, want nil", blocks)
	}
}

func TestDetectMarkerPrecedenceFinalVarWins(t *testing.T) {
	text := "FINAL_VAR(x)\nFINAL(y)"
	called := false
	hook := func(identifier string) (string, string, error) {
		called = true
		if identifier != "x" {
			t.Fatalf("hook called with %q, want x", identifier)
		}
		return "42", "", nil
	}

	m := DetectMarker(text, hook)
	if !m.Found {
		t.Fatal("expected marker found")
	}
	if !called {
		t.Fatal("expected FINAL_VAR hook to be invoked, not FINAL")
	}
	if m.Answer != "42" {
		t.Fatalf("answer = %q, want 42", m.Answer)
	}
}

func TestDetectMarkerFinalOnly(t *testing.T) {
	m := DetectMarker(`FINAL(the (quoted) answer)`, nil)
	if !m.Found {
		t.Fatal("expected marker found")
	}
	if m.Answer != "the (quoted) answer" {
		t.Fatalf("answer = %q", m.Answer)
	}
}

func TestDetectMarkerFinalVarWithoutHook(t *testing.T) {
	m := DetectMarker("FINAL_VAR(none)", nil)
	if !m.Found {
		t.Fatal("expected marker found even without a sandbox")
	}
	if m.Answer != "" {
		t.Fatalf("answer = %q, want empty per spec open question", m.Answer)
	}
}

func TestDetectMarkerNone(t *testing.T) {
	if m := DetectMarker("just thinking out loud", nil); m.Found {
		t.Fatalf("unexpected marker: %+v", m)
	}
}

func TestRenderREPLResultEmpty(t *testing.T) {
	if got := RenderREPLResult(model.REPLResult{}); got != "No output" {
		t.Fatalf("got %q, want \"No output\"", got)
	}
}

func TestRenderREPLResultClamp(t *testing.T) {
	huge := strings.Repeat("x", 50000)
	rendered := RenderREPLResult(model.REPLResult{Stdout: huge})
	if len(rendered) > maxRenderedResult+64 {
		t.Fatalf("rendered length %d exceeds clamp + suffix budget", len(rendered))
	}
	if !strings.Contains(rendered, "chars elided") {
		t.Fatalf("rendered result missing elision suffix: %q", rendered[len(rendered)-40:])
	}
}

func TestRenderREPLResultFiltersReservedLocals(t *testing.T) {
	r := model.REPLResult{
		Stdout: "ok",
		Locals: map[string]any{"_private": "hidden", "visible": "shown"},
	}
	rendered := RenderREPLResult(r)
	if strings.Contains(rendered, "_private") {
		t.Fatalf("rendered result leaked reserved identifier: %q", rendered)
	}
	if !strings.Contains(rendered, "visible") {
		t.Fatalf("rendered result missing visible identifier: %q", rendered)
	}
}
