package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/54b3r/crag-go/internal/logging"
	"github.com/54b3r/crag-go/internal/server"
	"github.com/54b3r/crag-go/internal/store"
	"github.com/54b3r/crag-go/internal/tracing"
)

// NewServeCmd constructs the `crag serve` command, which starts the HTTP
// server exposing the answer pipeline.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the crag HTTP server",
		Long: `Start the crag HTTP server on localhost.

The server exposes POST /api/answer for running the answer loop, read-only
run history under /api/runs, health and readiness probes, and Prometheus
metrics on /metrics. Protected routes require CRAG_API_KEY as a Bearer token.

Examples:
  crag serve
  crag serve --port 9090
  MODEL_PROVIDER=openai crag serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			bundle, err := buildPipeline(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer bundle.Close()

			// Open the run history store. CRAG_RUNS_DB overrides the default
			// path (~/.crag/runs.db). Set to "disabled" to disable.
			var runStore store.RunStore
			dbPath := os.Getenv("CRAG_RUNS_DB")
			if dbPath != "disabled" {
				if dbPath == "" {
					dbPath, err = store.DefaultDBPath()
					if err != nil {
						log.Warn("runs: could not resolve default DB path, disabling", slog.Any("error", err))
					}
				}
				if dbPath != "" {
					rs, rsErr := store.Open(dbPath)
					if rsErr != nil {
						log.Warn("runs: failed to open store, disabling", slog.Any("error", rsErr))
					} else {
						runStore = rs
						defer func() { _ = rs.Close() }()
						log.Info("runs: store opened", slog.String("path", dbPath))
					}
				}
			} else {
				log.Info("runs: disabled via CRAG_RUNS_DB=disabled")
			}

			srv, err := server.New(bundle.Pipeline, runStore, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: buildPingers(bundle),
				APIKey:  os.Getenv("CRAG_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
