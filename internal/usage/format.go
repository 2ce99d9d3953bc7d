// Package usage provides display formatting for the engine's usage
// types: per-model token totals and completion timings, rendered for
// the CLI's human-readable output.
package usage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ertembiyik/rlm-engine/internal/model"
)

// FormatTokenCount formats a token count for display, abbreviating
// past the thousands and millions.
func FormatTokenCount(count int64) string {
	if count <= 0 {
		return "0"
	}
	if count >= 1_000_000 {
		return fmt.Sprintf("%.1fm", float64(count)/1_000_000)
	}
	if count >= 10_000 {
		return fmt.Sprintf("%dk", count/1_000)
	}
	if count >= 1_000 {
		return fmt.Sprintf("%.1fk", float64(count)/1_000)
	}
	return fmt.Sprintf("%d", count)
}

// FormatUsage renders a single model's usage triple as "N calls, in:
// X, out: Y".
func FormatUsage(u model.Usage) string {
	if u.Calls == 0 {
		return "0 calls"
	}
	return fmt.Sprintf("%d call(s), in: %s, out: %s",
		u.Calls, FormatTokenCount(u.InputTokens), FormatTokenCount(u.OutputTokens))
}

// FormatSummary renders a full usage summary as one line per model,
// sorted by model name for stable output.
func FormatSummary(summary model.UsageSummary) string {
	if len(summary) == 0 {
		return "no usage recorded"
	}
	names := make([]string, 0, len(summary))
	for name := range summary {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("%s: %s", name, FormatUsage(summary[name])))
	}
	return strings.Join(lines, "\n")
}

// FormatDurationSeconds formats a duration given in seconds, switching
// units as the magnitude grows.
func FormatDurationSeconds(seconds float64) string {
	ms := int64(seconds * 1000)
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	if ms < 3600000 {
		return fmt.Sprintf("%.1fm", float64(ms)/60000)
	}
	return fmt.Sprintf("%.1fh", float64(ms)/3600000)
}
