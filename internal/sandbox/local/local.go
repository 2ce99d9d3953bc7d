// Package local implements the local sandbox backend: a stateful code
// REPL hosted in an in-process goja interpreter, with inter-turn
// variables persisted through a JSON side-file and the four hook
// functions injected into every execution.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"

	"github.com/ertembiyik/rlm-engine/internal/model"
	"github.com/ertembiyik/rlm-engine/internal/router"
)

const (
	executionTimeout = 5 * time.Minute
	maxStdoutBytes   = 50 * 1024 * 1024
)

// Backend is the local, in-process sandbox. A fresh goja runtime hosts
// every execution; state that must survive between executions is
// round-tripped through a JSON side-file in the scratch directory.
type Backend struct {
	baseDir string

	mu           sync.Mutex
	scratchDir   string
	statePath    string
	addr         router.Address
	contextCount int
	historyCount int
}

// Option configures a Backend at construction.
type Option func(*Backend)

// WithBaseDir overrides the parent directory under which the scratch
// directory is created. Defaults to os.TempDir().
func WithBaseDir(dir string) Option {
	return func(b *Backend) { b.baseDir = dir }
}

// New returns a local Backend bound to addr. Setup must be called
// before use.
func New(addr router.Address, opts ...Option) *Backend {
	b := &Backend{baseDir: os.TempDir(), addr: addr}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Backend() string { return "local" }

func (b *Backend) Setup(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	dir := filepath.Join(b.baseDir, "rlm-local-"+uuid.NewString())
	if err := os.Mkdir(dir, 0o700); err != nil {
		return fmt.Errorf("local sandbox: create scratch dir: %w", err)
	}
	b.scratchDir = dir
	b.statePath = filepath.Join(dir, "state.yaml")
	return saveState(b.statePath, map[string]any{})
}

func (b *Backend) LoadContext(ctx context.Context, payload model.ContextPayload) error {
	_, err := b.AddContext(ctx, payload, 0)
	return err
}

func (b *Backend) UpdateHandlerAddress(addr router.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addr = addr
}

func (b *Backend) AddContext(ctx context.Context, payload model.ContextPayload, index int) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if index < 0 {
		index = b.contextCount
	}
	state, err := loadState(b.statePath)
	if err != nil {
		return 0, err
	}
	state[fmt.Sprintf("context_%d", index)] = payload.Value()
	if index == 0 {
		state["context"] = payload.Value()
	}
	if err := saveState(b.statePath, state); err != nil {
		return 0, err
	}
	if index >= b.contextCount {
		b.contextCount = index + 1
	}
	return index, nil
}

func (b *Backend) AddHistory(ctx context.Context, messages []model.Message, index int) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if index < 0 {
		index = b.historyCount
	}
	state, err := loadState(b.statePath)
	if err != nil {
		return 0, err
	}
	snapshot := make([]map[string]string, len(messages))
	for i, m := range messages {
		snapshot[i] = map[string]string{"role": m.Role, "content": m.Content}
	}
	state[fmt.Sprintf("history_%d", index)] = snapshot
	if err := saveState(b.statePath, state); err != nil {
		return 0, err
	}
	if index >= b.historyCount {
		b.historyCount = index + 1
	}
	return index, nil
}

func (b *Backend) ContextCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.contextCount
}

func (b *Backend) HistoryCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.historyCount
}

func (b *Backend) ExecuteCode(ctx context.Context, depth int, source string) (model.REPLResult, error) {
	b.mu.Lock()
	addr := b.addr
	statePath := b.statePath
	b.mu.Unlock()

	state, err := loadState(statePath)
	if err != nil {
		return model.REPLResult{}, err
	}

	priors := make([]string, 0, len(state))
	for name := range state {
		if !isReservedIdentifier(name) {
			priors = append(priors, name)
		}
	}
	sort.Strings(priors)

	vm := goja.New()
	for name, value := range state {
		if isReservedIdentifier(name) {
			continue
		}
		if err := vm.Set(name, value); err != nil {
			return model.REPLResult{}, fmt.Errorf("local sandbox: inject %s: %w", name, err)
		}
	}

	var stdout strings.Builder
	printFunc := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		if stdout.Len()+len(strings.Join(parts, " "))+1 < maxStdoutBytes {
			stdout.WriteString(strings.Join(parts, " "))
			stdout.WriteString("\n")
		}
		return goja.Undefined()
	}
	_ = vm.Set("print", printFunc)
	console := vm.NewObject()
	_ = console.Set("log", printFunc)
	_ = vm.Set("console", console)
	if err := installRegexModule(vm); err != nil {
		return model.REPLResult{}, fmt.Errorf("local sandbox: install regex module: %w", err)
	}

	var calls []model.SubLMCall
	hooks := &hookSet{addr: addr, depth: depth, calls: &calls, priors: priors, source: source}
	_ = vm.Set("llm_query", hooks.llmQuery(vm))
	_ = vm.Set("llm_query_batched", hooks.llmQueryBatched(vm))
	_ = vm.Set("FINAL_VAR", hooks.finalVar(vm))
	_ = vm.Set("SHOW_VARS", hooks.showVars(vm))

	timeoutCtx, cancel := context.WithTimeout(ctx, executionTimeout)
	defer cancel()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-timeoutCtx.Done():
			vm.Interrupt("execution timeout or cancelled")
		case <-done:
		}
	}()

	start := time.Now()
	_, runErr := vm.RunString(source)
	duration := time.Since(start)

	var stderr string
	if runErr != nil {
		if interrupted, ok := runErr.(*goja.InterruptedError); ok {
			stderr = fmt.Sprintf("execution interrupted: %s", interrupted.Value())
		} else {
			stderr = runErr.Error()
		}
	}

	candidates := append([]string(nil), priors...)
	candidates = append(candidates, extractAssignmentTargets(source)...)
	seen := make(map[string]bool, len(candidates))
	locals := make(map[string]any)
	for _, name := range candidates {
		if seen[name] || isReservedIdentifier(name) {
			continue
		}
		seen[name] = true
		val := vm.Get(name)
		if val == nil || goja.IsUndefined(val) {
			continue
		}
		locals[name] = val.Export()
	}

	if runErr == nil {
		if err := saveState(statePath, locals); err != nil {
			return model.REPLResult{}, err
		}
	}

	result := model.REPLResult{
		Stdout:         stdout.String(),
		Stderr:         stderr,
		Locals:         locals,
		DurationSecond: duration.Seconds(),
		RLMCalls:       calls,
	}
	return result, nil
}

func (b *Backend) ExecuteFinalVar(ctx context.Context, depth int, identifier string) (string, string, error) {
	encoded, err := json.Marshal(identifier)
	if err != nil {
		return "", "", fmt.Errorf("local sandbox: encode identifier: %w", err)
	}
	source := fmt.Sprintf("print(FINAL_VAR(%s))", encoded)
	result, err := b.ExecuteCode(ctx, depth, source)
	if err != nil {
		return "", "", err
	}
	return result.Stdout, result.Stderr, nil
}

func (b *Backend) Cleanup(ctx context.Context) error {
	b.mu.Lock()
	dir := b.scratchDir
	b.scratchDir = ""
	b.mu.Unlock()

	if dir == "" {
		return nil
	}
	return os.RemoveAll(dir)
}
