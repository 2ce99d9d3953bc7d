// Package driver implements the iteration driver: it orchestrates the
// turn loop between the LM and a sandbox session, bounds iterations and
// recursion depth, detects termination, and emits iteration events to
// its observers.
package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ertembiyik/rlm-engine/internal/llm"
	"github.com/ertembiyik/rlm-engine/internal/model"
	"github.com/ertembiyik/rlm-engine/internal/observability"
	"github.com/ertembiyik/rlm-engine/internal/parsing"
	"github.com/ertembiyik/rlm-engine/internal/router"
	"github.com/ertembiyik/rlm-engine/internal/sandbox"
)

// Driver orchestrates one family of completions: the turn loop, the
// router lifecycle, and — when persistent — a sandbox session shared
// across successive Complete calls.
type Driver struct {
	rootModel llm.Adapter
	cfg       config
	backend   backendSpec

	mu                sync.Mutex
	persistentSession sandbox.PersistentSession
}

// New validates cfg against rootModel and returns a ready Driver.
// Persistence requested against a backend lacking the persistence
// extension, or an unknown backend name, is a configuration error and
// fails immediately.
func New(rootModel llm.Adapter, opts ...Option) (*Driver, error) {
	if rootModel == nil {
		return nil, fmt.Errorf("driver: root model is required")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	spec, err := lookupBackend(cfg.backendName, cfg.persistent)
	if err != nil {
		return nil, err
	}

	return &Driver{rootModel: rootModel, cfg: cfg, backend: spec}, nil
}

// Complete runs one end-to-end completion: context in, final answer
// out. rootPrompt, if non-empty, is the caller's root question,
// substituted into the per-iteration prompt (and, at max depth, folded
// into the single fallback message).
func (d *Driver) Complete(ctx context.Context, payload model.ContextPayload, rootPrompt string) (model.CompletionRecord, error) {
	start := time.Now()

	if d.cfg.tracer != nil {
		var span trace.Span
		ctx, span = d.cfg.tracer.Start(ctx, "driver.complete", observability.SpanOptions{
			Attributes: []attribute.KeyValue{
				attribute.String("rlm.root_model", d.rootModel.Name()),
				attribute.Int("rlm.depth", d.cfg.depth),
			},
		})
		defer span.End()
	}

	if d.cfg.depth >= d.cfg.maxDepth {
		return d.fallback(ctx, payload, rootPrompt, start)
	}

	r := router.New(d.rootModel, d.cfg.logger, d.cfg.metrics, d.cfg.tracer)
	if d.cfg.subModel != nil {
		r.RegisterSubModel(d.cfg.subModel)
	}
	addr, err := r.Start()
	if err != nil {
		return model.CompletionRecord{}, fmt.Errorf("driver: start router: %w", err)
	}
	defer r.Stop()

	session, freshlyCreated, err := d.acquireSandbox(addr)
	if err != nil {
		return model.CompletionRecord{}, err
	}
	if freshlyCreated && d.cfg.metrics != nil {
		d.cfg.metrics.SandboxOpened(d.cfg.backendName)
	}
	defer func() {
		if !d.cfg.persistent {
			_ = session.Cleanup(ctx)
			if d.cfg.metrics != nil {
				d.cfg.metrics.SandboxClosed(d.cfg.backendName)
			}
		}
	}()

	if freshlyCreated {
		if err := session.Setup(ctx); err != nil {
			return model.CompletionRecord{}, fmt.Errorf("driver: sandbox setup: %w", err)
		}
	}

	contextCount, historyCount, err := d.loadPayload(ctx, session, payload, freshlyCreated)
	if err != nil {
		return model.CompletionRecord{}, err
	}

	history := d.initialHistory(payload)

	subModels := []string(nil)
	if d.cfg.subModel != nil {
		subModels = []string{d.cfg.subModel.Name()}
	}
	metadataRecord := model.MetadataRecord{
		RootModel:      d.rootModel.Name(),
		MaxDepth:       d.cfg.maxDepth,
		MaxIterations:  d.cfg.maxIterations,
		SandboxBackend: d.cfg.backendName,
		Config:         sanitizeConfig(d.cfg.sandboxConfig),
		SubModels:      subModels,
	}
	notifyMetadata(d.cfg.logObserver, metadataRecord)
	notifyMetadata(d.cfg.verboseObserver, metadataRecord)

	for i := 0; i < d.cfg.maxIterations; i++ {
		iterStart := time.Now()

		iterCtx, endIteration := d.startIterationSpan(ctx, i)

		prompt := d.turnPrompt(i, rootPrompt, contextCount, historyCount)
		history = append(history, model.Message{Role: model.RoleUser, Content: prompt})

		response, _, err := r.Complete(iterCtx, history)
		if err != nil {
			endIteration()
			if d.cfg.metrics != nil {
				d.cfg.metrics.ObserveIterations(i + 1)
			}
			return model.CompletionRecord{}, fmt.Errorf("driver: lm call failed: %w", err)
		}

		blocks := d.runCodeBlocks(iterCtx, session, response)

		hook := func(identifier string) (string, string, error) {
			return session.ExecuteFinalVar(ctx, d.cfg.depth+1, identifier)
		}
		marker := parsing.DetectMarker(response, hook)

		iterDuration := time.Since(iterStart).Seconds()
		record := model.IterationRecord{
			Sequence:       i,
			History:        append([]model.Message(nil), history...),
			Response:       response,
			CodeBlocks:     blocks,
			DurationSecond: iterDuration,
		}
		if marker.Found {
			record.FinalAnswer = marker.Answer
		}
		notifyIteration(d.cfg.logObserver, record)
		notifyIteration(d.cfg.verboseObserver, record)

		if marker.Found {
			endIteration()
			if d.cfg.metrics != nil {
				d.cfg.metrics.ObserveIterations(i + 1)
			}
			if d.cfg.persistent {
				if ps, ok := session.(sandbox.PersistentSession); ok {
					_, _ = ps.AddHistory(ctx, history, -1)
				}
			}
			return model.CompletionRecord{
				RootModel:       d.rootModel.Name(),
				Prompt:          payload.Value(),
				Response:        marker.Answer,
				UsageSummary:    r.UsageSummary(),
				ExecutionSecond: time.Since(start).Seconds(),
			}, nil
		}

		endIteration()
		history = append(history, parsing.RenderIteration(response, blocks)...)
	}

	// Iterations exhausted: one epilogue call asking for a final answer
	// using only the accumulated history.
	history = append(history, model.Message{
		Role:    model.RoleAssistant,
		Content: "No more iterations remain. Produce a final answer now, using only what is already in this history.",
	})
	epilogueText, _, err := r.Complete(ctx, history)
	if d.cfg.metrics != nil {
		d.cfg.metrics.ObserveIterations(d.cfg.maxIterations + 1)
	}
	if err != nil {
		return model.CompletionRecord{}, fmt.Errorf("driver: epilogue lm call failed: %w", err)
	}

	return model.CompletionRecord{
		RootModel:       d.rootModel.Name(),
		Prompt:          payload.Value(),
		Response:        epilogueText,
		UsageSummary:    r.UsageSummary(),
		ExecutionSecond: time.Since(start).Seconds(),
	}, nil
}

// fallback performs the depth-exhausted direct LM call: no router, no
// sandbox, one message, one adapter call.
func (d *Driver) fallback(ctx context.Context, payload model.ContextPayload, rootPrompt string, start time.Time) (model.CompletionRecord, error) {
	content := stringifyPayload(payload)
	if rootPrompt != "" {
		content = rootPrompt + "\n\n" + content
	}
	messages := []model.Message{{Role: model.RoleUser, Content: content}}

	text, usage, err := d.rootModel.Generate(ctx, messages)
	if err != nil {
		return model.CompletionRecord{}, fmt.Errorf("driver: fallback lm call failed: %w", err)
	}

	return model.CompletionRecord{
		RootModel:       d.rootModel.Name(),
		Prompt:          payload.Value(),
		Response:        text,
		UsageSummary:    model.UsageSummary{d.rootModel.Name(): usage},
		ExecutionSecond: time.Since(start).Seconds(),
	}, nil
}

func stringifyPayload(payload model.ContextPayload) string {
	if payload.Shape() == model.ShapeText {
		return payload.Text
	}
	b, err := json.Marshal(payload.Value())
	if err != nil {
		return fmt.Sprintf("%v", payload.Value())
	}
	return string(b)
}

// acquireSandbox returns the sandbox session to use for this
// completion and whether it was just created (as opposed to a reused
// persistent session).
func (d *Driver) acquireSandbox(addr router.Address) (sandbox.Session, bool, error) {
	if !d.cfg.persistent {
		return d.backend.construct(addr, d.cfg.sandboxConfig), true, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.persistentSession != nil {
		d.persistentSession.UpdateHandlerAddress(addr)
		return d.persistentSession, false, nil
	}

	session := d.backend.construct(addr, d.cfg.sandboxConfig)
	ps, ok := session.(sandbox.PersistentSession)
	if !ok {
		return nil, false, fmt.Errorf("driver: backend %q does not implement the persistence extension", d.cfg.backendName)
	}
	d.persistentSession = ps
	return ps, true, nil
}

// loadPayload binds payload into the session: as a fresh "context" on
// first use, or as the next context_N when reusing a persistent
// session. It returns the context/history counts used to annotate
// subsequent turn prompts.
func (d *Driver) loadPayload(ctx context.Context, session sandbox.Session, payload model.ContextPayload, freshlyCreated bool) (contextCount, historyCount int, err error) {
	if freshlyCreated {
		if err := session.LoadContext(ctx, payload); err != nil {
			return 0, 0, fmt.Errorf("driver: load context: %w", err)
		}
	} else if ps, ok := session.(sandbox.PersistentSession); ok {
		if _, err := ps.AddContext(ctx, payload, -1); err != nil {
			return 0, 0, fmt.Errorf("driver: add context: %w", err)
		}
	}

	if ps, ok := session.(sandbox.PersistentSession); ok {
		return ps.ContextCount(), ps.HistoryCount(), nil
	}
	return 1, 0, nil
}

// initialHistory builds the system-prompt message and the metadata
// message describing the context's shape, total length, and per-chunk
// lengths (truncated past 100 entries).
func (d *Driver) initialHistory(payload model.ContextPayload) []model.Message {
	metadata := model.DeriveQueryMetadata(payload)

	chunkDesc := formatChunkLengths(metadata.ChunkLengths)
	metadataContent := fmt.Sprintf(
		"Context shape: %s. Total length: %d characters. Chunk lengths: %s.",
		metadata.Shape, metadata.TotalLength, chunkDesc)

	return []model.Message{
		{Role: model.RoleSystem, Content: d.cfg.systemPrompt},
		{Role: model.RoleAssistant, Content: metadataContent},
	}
}

func formatChunkLengths(lengths []int) string {
	if len(lengths) <= 100 {
		return fmt.Sprintf("%v", lengths)
	}
	shown := lengths[:100]
	return fmt.Sprintf("%v ... %d others", shown, len(lengths)-100)
}

// turnPrompt builds the per-iteration user-role prompt: a first-turn
// safeguard, the root question by substitution, and notes about
// available context_N/history_N identifiers when more than one exists.
func (d *Driver) turnPrompt(iteration int, rootPrompt string, contextCount, historyCount int) string {
	var b strings.Builder
	if iteration == 0 {
		b.WriteString("You have not yet inspected the REPL session. ")
	}
	if rootPrompt != "" {
		fmt.Fprintf(&b, "Question: %s\n", rootPrompt)
	}
	b.WriteString("Continue working toward a final answer. Use a ```repl``` block to run code, " +
		"or emit FINAL(answer) / FINAL_VAR(identifier) when ready.")
	if contextCount > 1 {
		fmt.Fprintf(&b, "\nAvailable contexts: context_0..context_%d.", contextCount-1)
	}
	if historyCount > 1 {
		fmt.Fprintf(&b, "\nAvailable histories: history_0..history_%d.", historyCount-1)
	}
	return b.String()
}

// runCodeBlocks extracts and sequentially dispatches the code blocks in
// response to the sandbox, preserving dispatch order.
func (d *Driver) runCodeBlocks(ctx context.Context, session sandbox.Session, response string) []model.CodeBlock {
	sources := parsing.ExtractCodeBlocks(response)
	blocks := make([]model.CodeBlock, 0, len(sources))
	for _, src := range sources {
		execStart := time.Now()
		result, err := session.ExecuteCode(ctx, d.cfg.depth+1, src)

		status := "ok"
		if err != nil {
			status = "error"
			result = model.REPLResult{Stderr: err.Error()}
		}
		if d.cfg.metrics != nil {
			d.cfg.metrics.ObserveSandboxExecution(d.cfg.backendName, status, time.Since(execStart).Seconds())
		}
		if d.cfg.tracer != nil {
			span := d.cfg.tracer.StartSpan(ctx, "driver.sandbox_execute", observability.SpanOptions{
				Attributes: []attribute.KeyValue{
					attribute.String("rlm.backend", d.cfg.backendName),
					attribute.String("rlm.status", status),
				},
			})
			if err != nil {
				d.cfg.tracer.RecordError(span, err)
			}
			span.End()
		}

		blocks = append(blocks, model.CodeBlock{Source: src, Result: result})
	}
	return blocks
}

// startIterationSpan opens a span covering one iteration of the turn loop
// when a tracer is configured, and returns a function to close it. With no
// tracer configured, it returns ctx unchanged and a no-op closer.
func (d *Driver) startIterationSpan(ctx context.Context, sequence int) (context.Context, func()) {
	if d.cfg.tracer == nil {
		return ctx, func() {}
	}
	iterCtx, span := d.cfg.tracer.Start(ctx, "driver.iteration", observability.SpanOptions{
		Attributes: []attribute.KeyValue{attribute.Int("rlm.sequence", sequence)},
	})
	return iterCtx, func() { span.End() }
}
