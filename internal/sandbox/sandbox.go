// Package sandbox defines the uniform session contract implemented by
// every code-execution backend (local, container): setup, context
// loading, code execution, and cleanup, plus an optional persistence
// extension for sessions that span more than one completion.
package sandbox

import (
	"context"
	"fmt"

	"github.com/ertembiyik/rlm-engine/internal/model"
	"github.com/ertembiyik/rlm-engine/internal/router"
)

// Session is the contract every sandbox backend implements.
type Session interface {
	// Backend names this session's backend ("local" or "container").
	Backend() string

	// Setup performs one-time initialization of backing resources.
	Setup(ctx context.Context) error

	// LoadContext makes payload visible in the REPL under "context"
	// (or "context_N" / "context" for N==0 when using AddContext).
	LoadContext(ctx context.Context, payload model.ContextPayload) error

	// ExecuteCode runs source against the session's current state and
	// returns the result. State mutations are persisted atomically.
	ExecuteCode(ctx context.Context, depth int, source string) (model.REPLResult, error)

	// ExecuteFinalVar runs the one-line FINAL_VAR(identifier) program
	// and returns its captured stdout and stderr, per §4.A/§4.C.
	ExecuteFinalVar(ctx context.Context, depth int, identifier string) (stdout, stderr string, err error)

	// Cleanup releases all backing resources. Idempotent, safe after
	// partial setup.
	Cleanup(ctx context.Context) error
}

// PersistentSession is the optional extension for backends that
// support reuse across completions.
type PersistentSession interface {
	Session

	// UpdateHandlerAddress rebinds the loopback router endpoint used
	// by the injected hooks.
	UpdateHandlerAddress(addr router.Address)

	// AddContext appends a new context as context_N (aliasing the
	// N==0 slot as "context") and returns the assigned index. index
	// of -1 requests auto-assignment.
	AddContext(ctx context.Context, payload model.ContextPayload, index int) (int, error)

	// AddHistory snapshots a completed message history as history_N
	// and returns the assigned index. index of -1 requests
	// auto-assignment.
	AddHistory(ctx context.Context, messages []model.Message, index int) (int, error)

	// ContextCount and HistoryCount are observer counters.
	ContextCount() int
	HistoryCount() int
}

// ErrUnsupportedBackend is returned by Factory.Open for an unknown
// backend name.
type ErrUnsupportedBackend struct {
	Name string
}

func (e *ErrUnsupportedBackend) Error() string {
	return fmt.Sprintf("sandbox: unsupported backend %q (supported: local, container)", e.Name)
}

// SupportsPersistence reports whether s implements PersistentSession.
func SupportsPersistence(s Session) bool {
	_, ok := s.(PersistentSession)
	return ok
}
