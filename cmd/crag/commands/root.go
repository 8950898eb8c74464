// Package commands defines all Cobra CLI commands for the crag binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/crag-go/internal/audit"
	"github.com/54b3r/crag-go/internal/config"
	"github.com/54b3r/crag-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "crag",
		Short: "crag — a self-correcting RAG question answering pipeline",
		Long: `crag answers natural language questions with a corrective RAG loop.

Each question is routed to a knowledge base (Qdrant) or live web search,
retrieved evidence is graded for relevance, and every candidate answer is
checked for grounding and sufficiency before it is returned. Failed checks
trigger query rewriting and re-retrieval within a bounded retry budget.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.crag/config.yaml).
See 'crag --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.crag/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewServeCmd(),
		NewIngestCmd(),
		NewVersionCmd(),
	)

	return root
}
