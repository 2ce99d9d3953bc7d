package local

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestExecuteCodeRegexModule(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()
	b := newTestBackend(t, testAddress(t, srv))

	result, err := b.ExecuteCode(context.Background(), 0, `
found = re.findAll("[0-9]+", "a1 b22 c333");
first = re.search("[0-9]+", "a1 b22 c333");
parts = re.split(",\\s*", "a, b,c");
swapped = re.replace("a", "banana", "o");
print(JSON.stringify(found));
print(first);
print(JSON.stringify(parts));
print(swapped);
`)
	if err != nil {
		t.Fatalf("ExecuteCode: %v", err)
	}
	if result.Stderr != "" {
		t.Fatalf("unexpected stderr: %s", result.Stderr)
	}
	lines := strings.Split(strings.TrimSpace(result.Stdout), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 stdout lines, got %d: %q", len(lines), result.Stdout)
	}
	if lines[0] != `["1","22","333"]` {
		t.Errorf("findAll = %q", lines[0])
	}
	if lines[1] != "1" {
		t.Errorf("search = %q", lines[1])
	}
	if lines[2] != `["a","b","c"]` {
		t.Errorf("split = %q", lines[2])
	}
	if lines[3] != "bonono" {
		t.Errorf("replace = %q", lines[3])
	}
}
