package commands

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/54b3r/crag-go/internal/logging"
	"github.com/54b3r/crag-go/internal/pipeline"
)

// NewAskCmd constructs the `crag ask` command, which runs one full answer
// loop for a single question and prints the result.
func NewAskCmd() *cobra.Command {
	var showTrace bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question through the corrective RAG loop",
		Long: `Run one self-correcting answer loop for a natural language question.

The question is routed to the knowledge base or live web search, retrieved
evidence is graded for relevance, and the generated answer is verified for
grounding and sufficiency before it is printed. Use --trace to see every
state transition the run took.

Examples:
  crag ask "what memory types do LLM agents use?"
  crag ask --trace "how does chain-of-thought prompting work?"
  TAVILY_API_KEY=tvly-... crag ask "who won the last world cup?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			bundle, err := buildPipeline(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer bundle.Close()

			res, err := bundle.Pipeline.Answer(ctx, args[0])
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			printResult(res, showTrace)
			return nil
		},
	}

	cmd.Flags().BoolVar(&showTrace, "trace", false, "Print the state transition trace of the run")

	return cmd
}

// printResult renders the run outcome to stdout.
func printResult(res *pipeline.Result, showTrace bool) {
	if res.State == pipeline.StateExhausted {
		color.Yellow("retry budget exhausted — returning fallback answer\n")
	}

	fmt.Println(res.Answer)
	fmt.Println()

	meta := color.New(color.Faint).PrintfFunc()
	meta("route=%s retries=%d state=%s duration=%s run_id=%s\n",
		res.Route, res.Retries, res.State, res.Duration.Round(time.Millisecond), res.RunID)

	if showTrace {
		color.Cyan("\ntrace:")
		for i, step := range res.Steps {
			fmt.Printf("  %2d. %-22s (%s)\n", i+1, step.State, step.Event)
		}
	}
}
