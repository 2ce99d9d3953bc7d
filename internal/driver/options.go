package driver

import (
	"github.com/ertembiyik/rlm-engine/internal/llm"
	"github.com/ertembiyik/rlm-engine/internal/observability"
)

const (
	defaultMaxDepth      = 1
	defaultMaxIterations = 30
	defaultBackend       = "local"
)

const defaultSystemPrompt = `You are operating inside a recursive language model execution engine.
You may write and run code in fenced ` + "```repl```" + ` blocks against a persistent REPL session to
inspect, chunk, and reason over the supplied context. When you have a final answer, emit it with
FINAL(your answer) or FINAL_VAR(identifier) naming a REPL variable already holding the answer.`

type config struct {
	subModel         llm.Adapter
	backendName      string
	sandboxConfig    map[string]any
	depth            int
	maxDepth         int
	maxIterations    int
	systemPrompt     string
	logObserver      Observer
	verboseObserver  Observer
	persistent       bool
	logger           *observability.Logger
	metrics          *observability.Metrics
	tracer           *observability.Tracer
}

func defaultConfig() config {
	return config{
		backendName:   defaultBackend,
		sandboxConfig: map[string]any{},
		maxDepth:      defaultMaxDepth,
		maxIterations: defaultMaxIterations,
		systemPrompt:  defaultSystemPrompt,
	}
}

// Option configures a Driver at construction.
type Option func(*config)

// WithSubModel registers a sub-model selectable at depth==1 router
// hooks, and included in the emitted metadata record.
func WithSubModel(adapter llm.Adapter) Option {
	return func(c *config) { c.subModel = adapter }
}

// WithSandboxBackend selects the sandbox backend by name ("local" or
// "container"). Defaults to "local".
func WithSandboxBackend(name string) Option {
	return func(c *config) { c.backendName = name }
}

// WithSandboxConfig supplies the backend-specific configuration bag.
// Sensitive keys are stripped before the metadata record is emitted;
// see sanitizeConfig.
func WithSandboxConfig(cfg map[string]any) Option {
	return func(c *config) { c.sandboxConfig = cfg }
}

// WithDepth sets the current recursion depth of this driver. Defaults
// to 0 — a root-level completion.
func WithDepth(depth int) Option {
	return func(c *config) { c.depth = depth }
}

// WithMaxDepth sets the maximum recursion depth before the driver
// degrades to the direct fallback completion. Defaults to 1.
func WithMaxDepth(maxDepth int) Option {
	return func(c *config) { c.maxDepth = maxDepth }
}

// WithMaxIterations bounds the iteration loop. Defaults to 30.
func WithMaxIterations(n int) Option {
	return func(c *config) { c.maxIterations = n }
}

// WithSystemPrompt overrides the published system-prompt text.
func WithSystemPrompt(prompt string) Option {
	return func(c *config) { c.systemPrompt = prompt }
}

// WithLogObserver registers the structured-log observer.
func WithLogObserver(obs Observer) Option {
	return func(c *config) { c.logObserver = obs }
}

// WithVerboseObserver registers the human-readable terminal observer.
func WithVerboseObserver(obs Observer) Option {
	return func(c *config) { c.verboseObserver = obs }
}

// WithPersistent keeps the sandbox alive across successive Complete
// calls on the same Driver. Requires a backend declaring the
// persistence extension.
func WithPersistent(persistent bool) Option {
	return func(c *config) { c.persistent = persistent }
}

// WithLogger attaches the structured application logger.
func WithLogger(logger *observability.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithMetrics attaches the Prometheus metrics bundle.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(c *config) { c.metrics = metrics }
}

// WithTracer attaches the OpenTelemetry tracer.
func WithTracer(tracer *observability.Tracer) Option {
	return func(c *config) { c.tracer = tracer }
}
