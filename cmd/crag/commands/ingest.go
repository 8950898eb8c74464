package commands

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/54b3r/crag-go/internal/embedder"
	"github.com/54b3r/crag-go/internal/ingestion"
	"github.com/54b3r/crag-go/internal/rag"
)

// NewIngestCmd constructs the `crag ingest` command, which runs the
// knowledge-base ingestion pipeline to populate the vector store.
func NewIngestCmd() *cobra.Command {
	var topic string
	var docType string
	var urls []string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest articles into the knowledge-base vector store",
		Long: `Fetch and index articles into the Qdrant vector store.

Ingested articles form the knowledge base that the vectorstore retrieval
route searches. Questions about indexed topics are answered from this
corpus; everything else falls through to live web search.

Required environment variables:
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION    Collection name (default: crag-kb)
  QDRANT_API_KEY       Optional API key for authenticated clusters
  MODEL_PROVIDER       Embedding backend: ollama, openai, azure (default: ollama)
  EMBEDDING_*          Provider-specific overrides (see README)

Metadata flags (--topic, --doc-type) are optional. When omitted, metadata is
auto-inferred from the URL pattern (e.g. lilianweng.github.io post slugs
resolve the topic automatically). Explicit flags override inference.

Examples:
  crag ingest --url https://lilianweng.github.io/posts/2023-06-23-agent/
  crag ingest --url https://arxiv.org/abs/2401.15884 --topic retrieval
  crag ingest --topic prompt-engineering --doc-type guide --url https://example.com/prompting-handbook`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := slog.Default()

			if len(urls) == 0 {
				return fmt.Errorf("ingest: at least one --url is required")
			}

			if err := embedder.ValidateForRAG(log); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("ingest: failed to initialise embedder: %w", err)
			}
			log.Info("embedder initialised", slog.String("provider", getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))))

			qdrantHost := getEnvOrDefault("QDRANT_HOST", "localhost")
			qdrantPort := getEnvInt("QDRANT_PORT", 6334)
			collection := getEnvOrDefault("QDRANT_COLLECTION", "crag-kb")
			embBackend := getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))
			vectorSize := uint64(embedder.DefaultDimensions(embBackend)) //nolint:gosec // dimensions are bounded

			store, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
				Host:       qdrantHost,
				Port:       qdrantPort,
				Collection: collection,
				VectorSize: vectorSize,
				APIKey:     os.Getenv("QDRANT_API_KEY"),
				UseTLS:     os.Getenv("QDRANT_TLS") == "true",
			})
			if err != nil {
				return fmt.Errorf("ingest: failed to connect to Qdrant at %s:%d: %w", qdrantHost, qdrantPort, err)
			}
			defer store.Close()
			log.Info("qdrant store ready", slog.String("host", qdrantHost), slog.Int("port", qdrantPort), slog.String("collection", collection))

			ingestPipeline, err := ingestion.NewPipeline(emb, store, nil)
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			topicSet := cmd.Flags().Changed("topic")
			docTypeSet := cmd.Flags().Changed("doc-type")

			sources := make([]ingestion.Source, 0, len(urls))
			for _, u := range urls {
				inferred := ingestion.InferMetadata(u)

				src := ingestion.Source{URL: u}
				if topicSet {
					src.Topic = topic
				} else {
					src.Topic = inferred.Topic
				}
				if docTypeSet {
					src.DocType = docType
				} else {
					src.DocType = inferred.DocType
				}

				log.Info("source metadata",
					slog.String("url", u),
					slog.String("topic", src.Topic),
					slog.String("doc_type", src.DocType),
				)
				sources = append(sources, src)
			}

			bar := newIngestBar(len(sources))

			err = ingestPipeline.Ingest(ctx, sources, func(msg string) {
				bar.Describe(color.BlueString(msg))
				if strings.HasPrefix(msg, "ingested") {
					_ = bar.Add(1)
				}
				log.Info(msg)
			})
			if err != nil {
				return fmt.Errorf("ingest: pipeline failed: %w", err)
			}
			_ = bar.Finish()
			fmt.Println()

			color.Green("✓ ingested %d source(s) into %s\n", len(sources), collection)
			return nil
		},
	}

	cmd.Flags().StringVarP(&topic, "topic", "t", "general", "Knowledge-base topic label (agents, prompt-engineering, ...)")
	cmd.Flags().StringVarP(&docType, "doc-type", "d", "article", "Document type (post, paper, readme, guide, article)")
	cmd.Flags().StringArrayVarP(&urls, "url", "u", nil, "Article URL to ingest (repeatable)")

	return cmd
}

// newIngestBar builds the progress bar shown during ingestion.
func newIngestBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString("ingesting")),
		progressbar.OptionSetItsString("sources"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
}
