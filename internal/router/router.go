// Package router implements the loopback LM routing layer: a per-
// completion HTTP server exposing single and batched completion
// endpoints, model selection by depth and name, and usage tracking.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ertembiyik/rlm-engine/internal/llm"
	"github.com/ertembiyik/rlm-engine/internal/model"
	"github.com/ertembiyik/rlm-engine/internal/observability"
)

// Address is the {host, port} pair handed to the sandbox so it can
// reach this router over loopback.
type Address struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (a Address) String() string { return fmt.Sprintf("%s:%d", a.Host, a.Port) }

// URL returns the base http://host:port URL for this address.
func (a Address) URL() string { return fmt.Sprintf("http://%s", a.String()) }

// Router is a loopback HTTP server owned by the driver for the
// duration of one completion, exposing /llm_query and
// /llm_query_batched to the sandbox and a direct, non-HTTP completion
// path to the driver itself.
type Router struct {
	mu           sync.RWMutex
	defaultModel llm.Adapter
	subModels    map[string]llm.Adapter
	tracker      *UsageTracker
	logger       *observability.Logger
	metrics      *observability.Metrics
	tracer       *observability.Tracer

	listener net.Listener
	server   *http.Server
}

// New builds a Router whose default (root) model is defaultModel. tracer may
// be nil, in which case Router spans no LM calls.
func New(defaultModel llm.Adapter, logger *observability.Logger, metrics *observability.Metrics, tracer *observability.Tracer) *Router {
	return &Router{
		defaultModel: defaultModel,
		subModels:    make(map[string]llm.Adapter),
		tracker:      NewUsageTracker(),
		logger:       logger,
		metrics:      metrics,
		tracer:       tracer,
	}
}

// RegisterSubModel makes adapter selectable by name, and as the
// depth==1 default when no explicit model name is given.
func (r *Router) RegisterSubModel(adapter llm.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subModels[adapter.Name()] = adapter
}

// Start binds the HTTP server to 127.0.0.1 on an OS-assigned port and
// begins serving. It returns the bound address.
func (r *Router) Start() (Address, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return Address{}, fmt.Errorf("router: listen: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/llm_query", r.handleQuery)
	mux.HandleFunc("/llm_query_batched", r.handleQueryBatched)
	mux.HandleFunc("/", r.handleUnknown)

	r.listener = listener
	r.server = &http.Server{Handler: mux}

	go func() {
		if err := r.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if r.logger != nil {
				r.logger.Error(context.Background(), "router serve failed", "error", err)
			}
		}
	}()

	tcpAddr := listener.Addr().(*net.TCPAddr)
	addr := Address{Host: "127.0.0.1", Port: tcpAddr.Port}
	if r.logger != nil {
		r.logger.Info(context.Background(), "router started", "addr", addr.String())
	}
	return addr, nil
}

// Stop closes the listener. It is idempotent.
func (r *Router) Stop() error {
	if r.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := r.server.Shutdown(ctx)
	r.server = nil
	if r.logger != nil {
		r.logger.Info(context.Background(), "router stopped")
	}
	return err
}

// UsageSummary returns a snapshot of tracked usage across all models.
func (r *Router) UsageSummary() model.UsageSummary {
	return r.tracker.Summary()
}

// LastUsage returns the most recently tracked single usage triple.
func (r *Router) LastUsage() (model.Usage, bool) {
	return r.tracker.LastUsage()
}

// selectAdapter implements §4.E's model selection: an explicit name
// always wins; else depth==1 falls back to the registered sub-model;
// else the default (root) model is used.
func (r *Router) selectAdapter(explicit string, depth int) llm.Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if explicit != "" {
		if a, ok := r.subModels[explicit]; ok {
			return a
		}
		if r.defaultModel != nil && r.defaultModel.Name() == explicit {
			return r.defaultModel
		}
	}
	if depth == 1 {
		for _, a := range r.subModels {
			return a
		}
	}
	return r.defaultModel
}

// Complete is the direct, non-HTTP completion path used by the
// iteration driver itself (never by the sandbox).
func (r *Router) Complete(ctx context.Context, messages []model.Message) (string, model.Usage, error) {
	if r.tracer != nil {
		var span trace.Span
		ctx, span = r.tracer.Start(ctx, "router.complete", observability.SpanOptions{
			Attributes: []attribute.KeyValue{attribute.String("rlm.model", r.defaultModel.Name())},
		})
		defer span.End()
	}

	text, usage, err := r.defaultModel.Generate(ctx, messages)
	if err != nil {
		if r.tracer != nil {
			r.tracer.RecordError(trace.SpanFromContext(ctx), err)
		}
		return "", model.Usage{}, err
	}
	r.tracker.Track(r.defaultModel.Name(), usage)
	if r.metrics != nil {
		r.metrics.ObserveLLMCall(r.defaultModel.Name(), "ok")
	}
	return text, usage, nil
}

type queryRequest struct {
	Prompt any    `json:"prompt"`
	Model  string `json:"model,omitempty"`
	Depth  int    `json:"depth,omitempty"`
}

type queryBatchedRequest struct {
	Prompts []any  `json:"prompts"`
	Model   string `json:"model,omitempty"`
	Depth   int    `json:"depth,omitempty"`
}

type queryResponse struct {
	Response string         `json:"response"`
	RLMCall  model.SubLMCall `json:"rlm_call"`
}

type queryBatchedResponse struct {
	Responses []string         `json:"responses"`
	RLMCalls  []model.SubLMCall `json:"rlm_calls"`
}

func promptToMessages(prompt any) []model.Message {
	switch p := prompt.(type) {
	case string:
		return []model.Message{{Role: model.RoleUser, Content: p}}
	case []any:
		msgs := make([]model.Message, 0, len(p))
		allMessages := true
		for _, item := range p {
			obj, ok := item.(map[string]any)
			if !ok {
				allMessages = false
				break
			}
			role, _ := obj["role"].(string)
			content, _ := obj["content"].(string)
			if role == "" {
				allMessages = false
				break
			}
			msgs = append(msgs, model.Message{Role: role, Content: content})
		}
		if allMessages {
			return msgs
		}
	}
	b, err := json.Marshal(prompt)
	if err != nil {
		return []model.Message{{Role: model.RoleUser, Content: fmt.Sprintf("%v", prompt)}}
	}
	return []model.Message{{Role: model.RoleUser, Content: string(b)}}
}

func (r *Router) handleQuery(w http.ResponseWriter, req *http.Request) {
	var body queryRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	adapter := r.selectAdapter(body.Model, body.Depth)
	if adapter == nil {
		writeError(w, "no model available to serve this request")
		return
	}

	ctx := req.Context()
	if r.tracer != nil {
		var span trace.Span
		ctx, span = r.tracer.Start(ctx, "router.llm_query", observability.SpanOptions{
			Attributes: []attribute.KeyValue{
				attribute.String("rlm.model", adapter.Name()),
				attribute.Int("rlm.depth", body.Depth),
			},
		})
		defer span.End()
	}

	start := time.Now()
	messages := promptToMessages(body.Prompt)
	text, usage, err := adapter.Generate(ctx, messages)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		if r.metrics != nil {
			r.metrics.ObserveLLMCall(adapter.Name(), "error")
		}
		if r.tracer != nil {
			r.tracer.RecordError(trace.SpanFromContext(ctx), err)
		}
		writeError(w, err.Error())
		return
	}

	r.tracker.Track(adapter.Name(), usage)
	if r.metrics != nil {
		r.metrics.ObserveLLMCall(adapter.Name(), "ok")
		r.metrics.ObserveLLMLatency(adapter.Name(), elapsed)
	}

	resp := queryResponse{
		Response: text,
		RLMCall: model.SubLMCall{
			CallID:         uuid.NewString(),
			Model:          adapter.Name(),
			Prompt:         body.Prompt,
			Response:       text,
			Usage:          model.UsageSummary{adapter.Name(): usage},
			DurationSecond: elapsed,
		},
	}
	writeJSON(w, resp)
}

func (r *Router) handleQueryBatched(w http.ResponseWriter, req *http.Request) {
	var body queryBatchedRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	n := len(body.Prompts)
	responses := make([]string, n)
	calls := make([]model.SubLMCall, n)

	adapter := r.selectAdapter(body.Model, body.Depth)
	if adapter == nil {
		writeError(w, "no model available to serve this request")
		return
	}

	ctx := req.Context()
	if r.tracer != nil {
		var span trace.Span
		ctx, span = r.tracer.Start(ctx, "router.llm_query_batched", observability.SpanOptions{
			Attributes: []attribute.KeyValue{
				attribute.String("rlm.model", adapter.Name()),
				attribute.Int("rlm.depth", body.Depth),
				attribute.Int("rlm.batch_size", n),
			},
		})
		defer span.End()
	}

	start := time.Now()
	var wg sync.WaitGroup
	for i, prompt := range body.Prompts {
		wg.Add(1)
		go func(i int, prompt any) {
			defer wg.Done()
			messages := promptToMessages(prompt)
			text, usage, err := adapter.Generate(ctx, messages)
			if err != nil {
				responses[i] = fmt.Sprintf("Error: %v", err)
				if r.tracer != nil {
					r.tracer.RecordError(trace.SpanFromContext(ctx), err)
				}
				return
			}
			responses[i] = text
			r.tracker.Track(adapter.Name(), usage)
			calls[i] = model.SubLMCall{
				CallID:   uuid.NewString(),
				Model:    adapter.Name(),
				Prompt:   prompt,
				Response: text,
				Usage:    model.UsageSummary{adapter.Name(): usage},
			}
		}(i, prompt)
	}
	wg.Wait()
	elapsed := time.Since(start).Seconds()

	// Per-element elapsed is an approximation — overall elapsed divided
	// by count — and must never be used for billing (see §4.E).
	perElement := 0.0
	if n > 0 {
		perElement = elapsed / float64(n)
	}
	for i := range calls {
		calls[i].DurationSecond = perElement
	}

	if r.metrics != nil {
		r.metrics.ObserveLLMCall(adapter.Name(), "ok")
		r.metrics.ObserveLLMLatency(adapter.Name(), elapsed)
	}

	writeJSON(w, queryBatchedResponse{Responses: responses, RLMCalls: calls})
}

func (r *Router) handleUnknown(w http.ResponseWriter, req *http.Request) {
	writeError(w, fmt.Sprintf("Unknown endpoint: %s", req.URL.Path))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
