// Package container implements the container sandbox backend: an
// isolated OS-level container running a disposable Node.js child
// interpreter, fronted by a host-side proxy that relays the two hook
// endpoints since the child cannot reach the host's loopback address
// directly.
package container

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	execsan "github.com/ertembiyik/rlm-engine/internal/exec"
	"github.com/ertembiyik/rlm-engine/internal/model"
	"github.com/ertembiyik/rlm-engine/internal/router"
)

const (
	defaultImage     = "node:20-alpine"
	executionTimeout = 5 * time.Minute
	maxStdoutBytes   = 50 * 1024 * 1024
)

// Backend runs each execution in a fresh, network-isolated Docker
// container. Unlike the local backend it does not implement
// sandbox.PersistentSession: every container is single-use, so there is
// nothing for AddContext/AddHistory to accumulate against beyond the
// one state file already threaded through ExecuteCode.
type Backend struct {
	baseDir string
	image   string

	mu         sync.Mutex
	scratchDir string
	statePath  string
	proxy      *proxy
	addr       router.Address
}

// Option configures a Backend at construction.
type Option func(*Backend)

// WithBaseDir overrides the parent directory under which the scratch
// directory is created. Defaults to os.TempDir().
func WithBaseDir(dir string) Option {
	return func(b *Backend) { b.baseDir = dir }
}

// WithImage overrides the Docker image used to run the child
// interpreter. Defaults to node:20-alpine.
func WithImage(image string) Option {
	return func(b *Backend) { b.image = image }
}

// New returns a container Backend bound to addr, the router's loopback
// address. Setup must be called before use.
func New(addr router.Address, opts ...Option) *Backend {
	b := &Backend{baseDir: os.TempDir(), image: defaultImage, addr: addr}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Backend() string { return "container" }

func (b *Backend) Setup(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	dir := filepath.Join(b.baseDir, "rlm-container-"+uuid.NewString())
	if err := os.Mkdir(dir, 0o700); err != nil {
		return fmt.Errorf("container sandbox: create scratch dir: %w", err)
	}
	statePath := filepath.Join(dir, "state.json")
	if err := saveState(statePath, map[string]any{}); err != nil {
		os.RemoveAll(dir)
		return err
	}

	p, err := newProxy(b.addr)
	if err != nil {
		os.RemoveAll(dir)
		return fmt.Errorf("container sandbox: start forwarding proxy: %w", err)
	}

	b.scratchDir = dir
	b.statePath = statePath
	b.proxy = p
	return nil
}

func (b *Backend) LoadContext(ctx context.Context, payload model.ContextPayload) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, err := loadState(b.statePath)
	if err != nil {
		return err
	}
	state["context"] = payload.Value()
	state["context_0"] = payload.Value()
	return saveState(b.statePath, state)
}

func (b *Backend) ExecuteCode(ctx context.Context, depth int, source string) (model.REPLResult, error) {
	b.mu.Lock()
	statePath := b.statePath
	scratchDir := b.scratchDir
	proxyAddr := b.proxy.addr()
	image := b.image
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

	candidates := append([]string(nil), priors...)
	candidates = append(candidates, extractAssignmentTargets(source)...)

	scriptPath := filepath.Join(scratchDir, "program.js")
	program := materializeProgram(programInput{
		Priors:     priorsSubset(state, priors),
		Candidates: dedup(candidates),
		ProxyURL:   proxyAddr,
		Depth:      depth,
		Source:     source,
	})
	if err := os.WriteFile(scriptPath, []byte(program), 0o600); err != nil {
		return model.REPLResult{}, fmt.Errorf("container sandbox: write program: %w", err)
	}

	execCtx, cancel := context.WithTimeout(ctx, executionTimeout)
	defer cancel()

	start := time.Now()
	stdout, stderr, runErr := b.runContainer(execCtx, image, scratchDir)
	duration := time.Since(start)

	locals, calls, visibleStdout := splitSentinels(stdout)
	if len(visibleStdout) > maxStdoutBytes {
		visibleStdout = visibleStdout[:maxStdoutBytes]
	}

	combinedStderr := stderr
	if runErr != nil {
		if combinedStderr != "" {
			combinedStderr += "\n"
		}
		combinedStderr += runErr.Error()
	}

	if runErr == nil && locals != nil {
		if err := saveState(statePath, locals); err != nil {
			return model.REPLResult{}, err
		}
	}

	return model.REPLResult{
		Stdout:         visibleStdout,
		Stderr:         combinedStderr,
		Locals:         locals,
		DurationSecond: duration.Seconds(),
		RLMCalls:       calls,
	}, nil
}

func (b *Backend) ExecuteFinalVar(ctx context.Context, depth int, identifier string) (string, string, error) {
	encoded, err := json.Marshal(identifier)
	if err != nil {
		return "", "", fmt.Errorf("container sandbox: encode identifier: %w", err)
	}
	source := fmt.Sprintf("__rlm_print(FINAL_VAR(%s));", encoded)
	result, err := b.ExecuteCode(ctx, depth, source)
	if err != nil {
		return "", "", err
	}
	return result.Stdout, result.Stderr, nil
}

func (b *Backend) Cleanup(ctx context.Context) error {
	b.mu.Lock()
	dir := b.scratchDir
	p := b.proxy
	b.scratchDir = ""
	b.proxy = nil
	b.mu.Unlock()

	var errs []error
	if p != nil {
		if err := p.close(); err != nil {
			errs = append(errs, err)
		}
	}
	if dir != "" {
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// runContainer runs the materialized program.js under node in a
// disposable, network-restricted container that can still reach the
// host's forwarding proxy.
func (b *Backend) runContainer(ctx context.Context, image, scratchDir string) (stdout, stderr string, err error) {
	args := []string{"run", "--rm",
		"--network", "bridge",
		"--add-host", "host.docker.internal:host-gateway",
		"--cpus", "1.00",
		"--memory", "512m",
		"--memory-swap", "512m",
		"--pids-limit", "100",
		"-v", fmt.Sprintf("%s:/workspace:ro", scratchDir),
		"-w", "/workspace",
		image,
		"node", "program.js",
	}
	if sanErr := execsan.SanitizeDockerRunArgs(image, scratchDir); sanErr != nil {
		return "", "", fmt.Errorf("container sandbox: %w", sanErr)
	}

	cmd := exec.CommandContext(ctx, "docker", args...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	runErr := cmd.Run()

	if runErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return outBuf.String(), errBuf.String(), fmt.Errorf("container sandbox: execution timed out")
		}
		if _, ok := runErr.(*exec.ExitError); ok {
			return outBuf.String(), errBuf.String(), fmt.Errorf("container sandbox: program exited with error")
		}
		return outBuf.String(), errBuf.String(), fmt.Errorf("container sandbox: docker run: %w", runErr)
	}
	return outBuf.String(), errBuf.String(), nil
}

func isReservedIdentifier(name string) bool {
	return strings.HasPrefix(name, "_")
}

func dedup(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if seen[name] || isReservedIdentifier(name) || isReservedWord(name) {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

func priorsSubset(state map[string]any, names []string) map[string]any {
	out := make(map[string]any, len(names))
	for _, name := range names {
		if v, ok := state[name]; ok {
			out[name] = v
		}
	}
	return out
}
