// Command rlm is the CLI entry point for the recursive language model
// execution engine.
//
// # Basic Usage
//
// Run a completion against context piped on stdin:
//
//	cat notes.txt | rlm run --question "What is the total?"
//
// Run against a container-backed sandbox instead of the in-process one:
//
//	rlm run --backend container --question "Summarize this" < report.txt
//
// # Environment Variables
//
//   - ANTHROPIC_API_KEY: selects the Anthropic adapter as the root model
//   - OPENAI_API_KEY: selects the OpenAI adapter as the root model when
//     ANTHROPIC_API_KEY is unset
//   - RLM_SUB_MODEL: an OpenAI-compatible model name to register as the
//     depth==1 sub-model, authenticated with OPENAI_API_KEY
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "rlm",
		Short:         "Recursive language model execution engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(buildRunCmd(), buildVersionCmd())
	return cmd
}
