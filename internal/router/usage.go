package router

import (
	"sync"

	"github.com/ertembiyik/rlm-engine/internal/model"
)

// UsageTracker is a monotone mapping from model name to its
// accumulated (calls, input tokens, output tokens) triple, safe under
// concurrent batched-hook fan-out. It also remembers the most recently
// tracked single triple regardless of model, for the get_last_usage
// observer.
type UsageTracker struct {
	mu      sync.Mutex
	totals  model.UsageSummary
	last    model.Usage
	lastSet bool
}

// NewUsageTracker returns an empty tracker.
func NewUsageTracker() *UsageTracker {
	return &UsageTracker{totals: model.UsageSummary{}}
}

// Track records one call's usage against modelName. Absent fields in
// usage are treated as the zero value by the caller before this is
// invoked.
func (t *UsageTracker) Track(modelName string, usage model.Usage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry := t.totals[modelName]
	entry.Add(usage)
	t.totals[modelName] = entry
	t.last = usage
	t.lastSet = true
}

// Summary returns a snapshot of all per-model totals.
func (t *UsageTracker) Summary() model.UsageSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(model.UsageSummary, len(t.totals))
	for k, v := range t.totals {
		out[k] = v
	}
	return out
}

// LastUsage returns the most recently tracked single triple, and
// whether any usage has been tracked yet.
func (t *UsageTracker) LastUsage() (model.Usage, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.last, t.lastSet
}
