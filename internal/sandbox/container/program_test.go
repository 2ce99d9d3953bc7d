package container

import (
	"strings"
	"testing"
)

func TestMaterializeProgramEmbedsPriorsAndSource(t *testing.T) {
	program := materializeProgram(programInput{
		Priors:     map[string]any{"x": float64(42)},
		Candidates: []string{"x", "y"},
		ProxyURL:   "http://host.docker.internal:9999",
		Depth:      1,
		Source:     "y = x + 1;",
	})

	if !strings.Contains(program, "var x = 42;") {
		t.Fatalf("program missing prior variable declaration:\n%s", program)
	}
	if !strings.Contains(program, "y = x + 1;") {
		t.Fatalf("program missing user source:\n%s", program)
	}
	if !strings.Contains(program, `const __rlm_depth = 1;`) {
		t.Fatalf("program missing depth constant:\n%s", program)
	}
	if !strings.Contains(program, "findAll: function") {
		t.Fatalf("program missing regex module:\n%s", program)
	}
}

func TestMaterializeProgramSkipsReservedPriors(t *testing.T) {
	program := materializeProgram(programInput{
		Priors:     map[string]any{"_hidden": "x", "print": "shadow"},
		Candidates: nil,
		ProxyURL:   "http://host.docker.internal:9999",
		Depth:      0,
		Source:     "",
	})

	if strings.Contains(program, "var _hidden") {
		t.Fatal("reserved underscore-prefixed prior should not be declared")
	}
	if strings.Contains(program, "var print") {
		t.Fatal("reserved word prior should not be declared")
	}
}

func TestSplitSentinelsExtractsStateAndCalls(t *testing.T) {
	raw := "hello\n" +
		"world\n" +
		stateSentinel + `{"x":1}` + "\n" +
		callsSentinel + `[{"model":"stub","response":"hi","usage":{},"duration_seconds":0}]` + "\n"

	locals, calls, visible := splitSentinels(raw)

	if visible != "hello\nworld" {
		t.Fatalf("visible = %q, want %q", visible, "hello\nworld")
	}
	if locals["x"] != float64(1) {
		t.Fatalf("locals[x] = %v, want 1", locals["x"])
	}
	if len(calls) != 1 || calls[0].Model != "stub" {
		t.Fatalf("calls = %+v, want one stub call", calls)
	}
}

func TestSplitSentinelsToleratesMissingSentinels(t *testing.T) {
	locals, calls, visible := splitSentinels("plain output\n")
	if visible != "plain output" {
		t.Fatalf("visible = %q", visible)
	}
	if locals != nil || calls != nil {
		t.Fatal("expected nil locals and calls when no sentinel lines are present")
	}
}

func TestExtractAssignmentTargets(t *testing.T) {
	got := extractAssignmentTargets("let a = 1;\nb = 2;\nconst c = 3;")
	want := map[string]bool{"a": true, "b": true, "c": true}
	if len(got) != len(want) {
		t.Fatalf("got %v, want keys of %v", got, want)
	}
	for _, name := range got {
		if !want[name] {
			t.Fatalf("unexpected identifier %q", name)
		}
	}
}
