package router

import (
	"sync"
	"testing"

	"github.com/ertembiyik/rlm-engine/internal/model"
)

func TestUsageTrackerMonotonicity(t *testing.T) {
	tracker := NewUsageTracker()
	for i := 0; i < 5; i++ {
		tracker.Track("claude-x", model.Usage{Calls: 1, InputTokens: 10, OutputTokens: 3})
	}

	summary := tracker.Summary()
	if summary["claude-x"].Calls != 5 {
		t.Fatalf("calls = %d, want 5", summary["claude-x"].Calls)
	}
	if summary["claude-x"].InputTokens != 50 {
		t.Fatalf("input tokens = %d, want 50", summary["claude-x"].InputTokens)
	}
}

func TestUsageTrackerConcurrentTrack(t *testing.T) {
	tracker := NewUsageTracker()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Track("m", model.Usage{Calls: 1, InputTokens: 1, OutputTokens: 1})
		}()
	}
	wg.Wait()

	if got := tracker.Summary()["m"].Calls; got != 50 {
		t.Fatalf("calls = %d, want 50", got)
	}
}

func TestUsageTrackerLastUsage(t *testing.T) {
	tracker := NewUsageTracker()
	if _, ok := tracker.LastUsage(); ok {
		t.Fatal("expected no usage tracked yet")
	}
	tracker.Track("a", model.Usage{Calls: 1, InputTokens: 1})
	tracker.Track("b", model.Usage{Calls: 1, InputTokens: 2})

	last, ok := tracker.LastUsage()
	if !ok || last.InputTokens != 2 {
		t.Fatalf("last = %+v, ok = %v, want InputTokens=2", last, ok)
	}
}
