// Package llm defines the external LM adapter contract the router
// invokes, and provides concrete adapters over real providers plus a
// deterministic stub for tests.
package llm

import (
	"context"

	"github.com/ertembiyik/rlm-engine/internal/model"
)

// Adapter is a value the router can invoke as generate(messages) ->
// {text, usage}. It also exposes a stable identifier string used as
// its model name. Any failure is surfaced as an HTTP 500 from the
// router.
type Adapter interface {
	// Name is the stable model-name identifier this adapter answers to.
	Name() string

	// Generate sends messages to the underlying provider and returns
	// the completion text along with the provider's reported usage.
	// Usage may be zero-valued if the provider does not report it.
	Generate(ctx context.Context, messages []model.Message) (text string, usage model.Usage, err error)
}
