package usage

import (
	"strings"
	"testing"

	"github.com/ertembiyik/rlm-engine/internal/model"
)

func TestFormatTokenCount(t *testing.T) {
	cases := map[int64]string{
		0:         "0",
		500:       "500",
		1500:      "1.5k",
		25000:     "25k",
		2_500_000: "2.5m",
	}
	for count, want := range cases {
		if got := FormatTokenCount(count); got != want {
			t.Errorf("FormatTokenCount(%d) = %q, want %q", count, got, want)
		}
	}
}

func TestFormatUsageZeroCalls(t *testing.T) {
	if got := FormatUsage(model.Usage{}); got != "0 calls" {
		t.Errorf("FormatUsage(zero) = %q, want %q", got, "0 calls")
	}
}

func TestFormatSummarySortedByModel(t *testing.T) {
	summary := model.UsageSummary{
		"zeta":  {Calls: 1, InputTokens: 10, OutputTokens: 5},
		"alpha": {Calls: 2, InputTokens: 100, OutputTokens: 50},
	}
	got := FormatSummary(summary)
	lines := strings.Split(got, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %v", len(lines), lines)
	}
	if !strings.HasPrefix(lines[0], "alpha:") {
		t.Errorf("first line = %q, want alpha first", lines[0])
	}
	if !strings.HasPrefix(lines[1], "zeta:") {
		t.Errorf("second line = %q, want zeta second", lines[1])
	}
}

func TestFormatSummaryEmpty(t *testing.T) {
	if got := FormatSummary(nil); got != "no usage recorded" {
		t.Errorf("FormatSummary(nil) = %q", got)
	}
}

func TestFormatDurationSeconds(t *testing.T) {
	cases := map[float64]string{
		0.2:  "200ms",
		1.5:  "1.5s",
		90:   "1.5m",
		7200: "2.0h",
	}
	for seconds, want := range cases {
		if got := FormatDurationSeconds(seconds); got != want {
			t.Errorf("FormatDurationSeconds(%v) = %q, want %q", seconds, got, want)
		}
	}
}
