// handlers.go contains the runtime logic invoked by the cobra commands:
// adapter selection from the environment, context payload construction,
// and driver wiring.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ertembiyik/rlm-engine/internal/driver"
	"github.com/ertembiyik/rlm-engine/internal/llm"
	"github.com/ertembiyik/rlm-engine/internal/model"
	"github.com/ertembiyik/rlm-engine/internal/observability"
	"github.com/ertembiyik/rlm-engine/internal/usage"
)

type runOptions struct {
	question      string
	backend       string
	baseDir       string
	image         string
	maxIterations int
	persistent    bool
	jsonOutput    bool
	logLevel      string
	logFormat     string
	otelEndpoint  string
}

func runRun(cmd *cobra.Command, opts runOptions) error {
	rootModel, subModel, err := adaptersFromEnv()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(observability.LogConfig{Level: opts.logLevel, Format: opts.logFormat})
	metrics := observability.NewMetrics()
	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName: "rlm-engine",
		Endpoint:    opts.otelEndpoint,
	})
	defer func() { _ = shutdownTracer(context.Background()) }()

	sandboxConfig := map[string]any{}
	if opts.baseDir != "" {
		sandboxConfig["base_dir"] = opts.baseDir
	}
	if opts.image != "" {
		sandboxConfig["image"] = opts.image
	}

	driverOpts := []driver.Option{
		driver.WithSandboxBackend(opts.backend),
		driver.WithSandboxConfig(sandboxConfig),
		driver.WithMaxIterations(opts.maxIterations),
		driver.WithPersistent(opts.persistent),
		driver.WithLogger(logger),
		driver.WithMetrics(metrics),
		driver.WithTracer(tracer),
	}
	if subModel != nil {
		driverOpts = append(driverOpts, driver.WithSubModel(subModel))
	}

	d, err := driver.New(rootModel, driverOpts...)
	if err != nil {
		return fmt.Errorf("construct driver: %w", err)
	}

	payload, err := readContextPayload(cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("read context: %w", err)
	}

	record, err := d.Complete(cmd.Context(), payload, opts.question)
	if err != nil {
		return fmt.Errorf("complete: %w", err)
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(record)
	}
	cmd.Println(record.Response)
	cmd.PrintErrf("\n--- usage (%s) ---\n%s\n", usage.FormatDurationSeconds(record.ExecutionSecond), usage.FormatSummary(record.UsageSummary))
	return nil
}

// adaptersFromEnv selects the root model adapter based on whichever API
// key is present, preferring Anthropic, and optionally registers an
// OpenAI-compatible sub-model named by RLM_SUB_MODEL.
func adaptersFromEnv() (llm.Adapter, llm.Adapter, error) {
	var root llm.Adapter

	switch {
	case os.Getenv("ANTHROPIC_API_KEY") != "":
		a, err := llm.NewAnthropicAdapter(envOrDefault("RLM_ROOT_MODEL", "claude-sonnet-4-5"), os.Getenv("ANTHROPIC_API_KEY"))
		if err != nil {
			return nil, nil, fmt.Errorf("anthropic adapter: %w", err)
		}
		root = a
	case os.Getenv("OPENAI_API_KEY") != "":
		a, err := llm.NewOpenAIAdapter(envOrDefault("RLM_ROOT_MODEL", "gpt-4o"), os.Getenv("OPENAI_API_KEY"))
		if err != nil {
			return nil, nil, fmt.Errorf("openai adapter: %w", err)
		}
		root = a
	default:
		return nil, nil, fmt.Errorf("no root model available: set ANTHROPIC_API_KEY or OPENAI_API_KEY")
	}

	var sub llm.Adapter
	if subName := os.Getenv("RLM_SUB_MODEL"); subName != "" {
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, nil, fmt.Errorf("RLM_SUB_MODEL requires OPENAI_API_KEY")
		}
		a, err := llm.NewOpenAIAdapter(subName, apiKey)
		if err != nil {
			return nil, nil, fmt.Errorf("sub-model adapter: %w", err)
		}
		sub = a
	}

	return root, sub, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// readContextPayload reads all of r and wraps it as a text context
// payload, unless it parses as a JSON array or object, in which case it
// is wrapped as a sequence or collection context respectively.
func readContextPayload(r io.Reader) (model.ContextPayload, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return model.ContextPayload{}, err
	}
	text := string(raw)
	trimmed := strings.TrimSpace(text)

	if strings.HasPrefix(trimmed, "[") {
		var seq []any
		if err := json.Unmarshal([]byte(trimmed), &seq); err == nil {
			return model.NewSequenceContext(seq), nil
		}
	}
	if strings.HasPrefix(trimmed, "{") {
		var coll map[string]any
		if err := json.Unmarshal([]byte(trimmed), &coll); err == nil {
			return model.NewCollectionContext(coll), nil
		}
	}
	return model.NewTextContext(text), nil
}
