// commands.go contains cobra command definitions for the rlm CLI.
package main

import (
	"github.com/spf13/cobra"
)

var cliVersion = "dev"

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the rlm version",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.Println(cliVersion)
			return nil
		},
	}
}

func buildRunCmd() *cobra.Command {
	var (
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
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one completion against context read from stdin (or --file)",
		Long: `Run reads a context payload — plain text by default, or a JSON array/object
with --json-context — and drives the iteration loop until the model emits a
final answer or the iteration budget is exhausted.`,
		Example: `  # Summarize a file using the local sandbox backend
  rlm run --question "Summarize this" < report.txt

  # Run against the container backend with a custom image
  rlm run --backend container --image node:20-alpine < notes.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := runOptions{
				question:      question,
				backend:       backend,
				baseDir:       baseDir,
				image:         image,
				maxIterations: maxIterations,
				persistent:    persistent,
				jsonOutput:    jsonOutput,
				logLevel:      logLevel,
				logFormat:     logFormat,
				otelEndpoint:  otelEndpoint,
			}
			return runRun(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&question, "question", "q", "", "the root question to answer over the supplied context")
	cmd.Flags().StringVarP(&backend, "backend", "b", "local", `sandbox backend: "local" or "container"`)
	cmd.Flags().StringVar(&baseDir, "base-dir", "", "sandbox scratch directory (defaults to a temp dir)")
	cmd.Flags().StringVar(&image, "image", "", "container image override (container backend only)")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 30, "maximum number of REPL turns before the epilogue fallback")
	cmd.Flags().BoolVar(&persistent, "persistent", false, "keep the sandbox session alive across completions (local backend only)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the full completion record as JSON instead of just the answer")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	cmd.Flags().StringVar(&logFormat, "log-format", "text", "log format: text or json")
	cmd.Flags().StringVar(&otelEndpoint, "otel-endpoint", "", "OTLP gRPC collector endpoint for distributed tracing (e.g. localhost:4317); tracing is disabled if unset")

	return cmd
}
