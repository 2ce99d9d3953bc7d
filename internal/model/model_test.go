package model

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDeriveQueryMetadataText(t *testing.T) {
	meta := DeriveQueryMetadata(NewTextContext("hello"))
	if meta.Shape != ShapeText {
		t.Fatalf("shape = %q, want text", meta.Shape)
	}
	if meta.TotalLength != 5 {
		t.Fatalf("total length = %d, want 5", meta.TotalLength)
	}
	if len(meta.ChunkLengths) != 1 || meta.ChunkLengths[0] != 5 {
		t.Fatalf("chunk lengths = %v, want [5]", meta.ChunkLengths)
	}
}

func TestDeriveQueryMetadataSequence(t *testing.T) {
	meta := DeriveQueryMetadata(NewSequenceContext([]any{"ab", "cde"}))
	if meta.Shape != ShapeSequence {
		t.Fatalf("shape = %q, want sequence", meta.Shape)
	}
	if meta.TotalLength != 5 {
		t.Fatalf("total length = %d, want 5", meta.TotalLength)
	}
	if len(meta.ChunkLengths) != 2 {
		t.Fatalf("chunk lengths = %v, want 2 entries", meta.ChunkLengths)
	}
}

func TestUsageSummaryMerge(t *testing.T) {
	a := UsageSummary{"m1": {Calls: 1, InputTokens: 10, OutputTokens: 20}}
	b := UsageSummary{"m1": {Calls: 2, InputTokens: 5, OutputTokens: 5}, "m2": {Calls: 1}}

	merged := a.Merge(b)

	want := Usage{Calls: 3, InputTokens: 15, OutputTokens: 25}
	if merged["m1"] != want {
		t.Fatalf("m1 = %+v, want %+v", merged["m1"], want)
	}
	if merged["m2"].Calls != 1 {
		t.Fatalf("m2 calls = %d, want 1", merged["m2"].Calls)
	}
}

func TestDeriveQueryMetadataCollection(t *testing.T) {
	got := DeriveQueryMetadata(NewCollectionContext(map[string]any{"a": "xy", "b": "z"}))

	want := QueryMetadata{
		Shape:        ShapeCollection,
		TotalLength:  3,
		ChunkLengths: []int{1, 2},
	}
	// ChunkLengths is derived by ranging over a map, so its element order
	// isn't guaranteed; sort both sides before comparing so the diff only
	// ever reports a genuine content mismatch.
	sortInts(got.ChunkLengths)
	sortInts(want.ChunkLengths)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("query metadata mismatch (-want +got):\n%s", diff)
	}
}

func sortInts(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func TestIterationRecordTerminal(t *testing.T) {
	r := IterationRecord{FinalAnswer: "done"}
	if !r.Terminal() {
		t.Fatal("expected terminal iteration")
	}
	r2 := IterationRecord{}
	if r2.Terminal() {
		t.Fatal("expected non-terminal iteration")
	}
}
