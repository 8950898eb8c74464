package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/54b3r/crag-go/internal/embedder"
	"github.com/54b3r/crag-go/internal/generate"
	"github.com/54b3r/crag-go/internal/judge"
	"github.com/54b3r/crag-go/internal/llmcall"
	"github.com/54b3r/crag-go/internal/pipeline"
	"github.com/54b3r/crag-go/internal/provider"
	"github.com/54b3r/crag-go/internal/rag"
	"github.com/54b3r/crag-go/internal/router"
	"github.com/54b3r/crag-go/internal/server"
	"github.com/54b3r/crag-go/internal/websearch"
)

// pipelineBundle holds a fully wired answer pipeline together with the
// resources it owns. Callers must invoke Close when done.
type pipelineBundle struct {
	// Pipeline is the wired answer loop.
	Pipeline *pipeline.Pipeline
	// Model is the underlying chat model, exposed for readiness probes.
	Model llmcall.ChatModel
	// QdrantStore is the vector store connection, nil when the knowledge
	// base is not configured.
	QdrantStore *rag.QdrantStore
	// closers run in reverse order on Close.
	closers []func()
}

// Close releases all resources owned by the bundle.
func (b *pipelineBundle) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// buildPipeline wires the full answer loop from environment configuration:
// chat model → shared LLM caller → router, judges, generator, rewriter →
// retrievers → orchestrator.
func buildPipeline(ctx context.Context, log *slog.Logger) (*pipelineBundle, error) {
	chatModel, err := provider.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised", slog.String("provider", getEnvOrDefault("MODEL_PROVIDER", "ollama")))

	caller, err := llmcall.New(chatModel, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise LLM caller: %w", err)
	}

	bundle := &pipelineBundle{Model: chatModel}

	classifier, err := router.New(caller, &router.Config{
		KnowledgeBaseTopics: os.Getenv("CRAG_KB_TOPICS"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialise router: %w", err)
	}

	docGrader, err := judge.NewDocumentGrader(caller)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise document grader: %w", err)
	}
	hallGrader, err := judge.NewHallucinationGrader(caller)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise hallucination grader: %w", err)
	}
	answerGrader, err := judge.NewAnswerGrader(caller)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise answer grader: %w", err)
	}

	generator, err := generate.NewGenerator(caller, &generate.Config{
		InsufficientAnswer: os.Getenv("CRAG_FALLBACK_ANSWER"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialise generator: %w", err)
	}
	rewriter, err := generate.NewRewriter(caller)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise rewriter: %w", err)
	}

	vectorRetriever, err := buildVectorRetriever(ctx, log, bundle)
	if err != nil {
		bundle.Close()
		return nil, err
	}

	webRetriever, err := buildWebRetriever(log)
	if err != nil {
		bundle.Close()
		return nil, err
	}

	p, err := pipeline.New(pipeline.Deps{
		Classifier:      classifier,
		VectorRetriever: vectorRetriever,
		WebRetriever:    webRetriever,
		Documents:       docGrader,
		Groundedness:    hallGrader,
		Sufficiency:     answerGrader,
		Generator:       generator,
		Rewriter:        rewriter,
	}, pipeline.Config{
		MaxRetries:     getEnvInt("CRAG_MAX_RETRIES", 0),
		FallbackRoute:  router.Route(os.Getenv("CRAG_FALLBACK_ROUTE")),
		FallbackAnswer: os.Getenv("CRAG_FALLBACK_ANSWER"),
		TopK:           getEnvInt("CRAG_TOP_K", 0),
	})
	if err != nil {
		bundle.Close()
		return nil, fmt.Errorf("failed to wire pipeline: %w", err)
	}

	bundle.Pipeline = p
	return bundle, nil
}

// buildVectorRetriever constructs the knowledge-base retriever. When
// QDRANT_HOST is unset the knowledge base is considered not configured: a
// placeholder retriever is returned that reports the backend unavailable,
// so vectorstore-routed questions fail with a clear retrieval error while
// websearch-routed questions are unaffected.
func buildVectorRetriever(ctx context.Context, log *slog.Logger, bundle *pipelineBundle) (rag.Retriever, error) {
	if os.Getenv("QDRANT_HOST") == "" {
		log.Info("knowledge base disabled", slog.String("reason", "QDRANT_HOST not set"))
		return unavailableRetriever{backend: "qdrant"}, nil
	}

	if err := embedder.ValidateForRAG(log); err != nil {
		return nil, fmt.Errorf("knowledge base misconfigured: %w", err)
	}

	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}

	embBackend := getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))
	store, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
		Host:       os.Getenv("QDRANT_HOST"),
		Port:       getEnvInt("QDRANT_PORT", 6334),
		Collection: getEnvOrDefault("QDRANT_COLLECTION", "crag-kb"),
		VectorSize: uint64(embedder.DefaultDimensions(embBackend)), //nolint:gosec // dimensions are bounded
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	bundle.QdrantStore = store
	bundle.closers = append(bundle.closers, func() { _ = store.Close() })
	log.Info("knowledge base ready", slog.String("collection", getEnvOrDefault("QDRANT_COLLECTION", "crag-kb")))

	inner, err := rag.NewVectorRetriever(emb, store, getEnvInt("CRAG_TOP_K", 0))
	if err != nil {
		return nil, fmt.Errorf("failed to initialise vector retriever: %w", err)
	}
	return rag.NewRetryingRetriever(inner, "qdrant", nil), nil
}

// buildWebRetriever constructs the live web search retriever.
func buildWebRetriever(log *slog.Logger) (rag.Retriever, error) {
	apiKey := os.Getenv("TAVILY_API_KEY")
	if apiKey == "" {
		log.Info("web search disabled", slog.String("reason", "TAVILY_API_KEY not set"))
		return unavailableRetriever{backend: "websearch"}, nil
	}

	client, err := websearch.NewClient(&websearch.Config{
		APIKey:      apiKey,
		Endpoint:    os.Getenv("TAVILY_ENDPOINT"),
		DefaultTopK: getEnvInt("TAVILY_MAX_RESULTS", 0),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialise web search: %w", err)
	}
	return rag.NewRetryingRetriever(client, "websearch", nil), nil
}

// unavailableRetriever stands in for a retrieval backend that was not
// configured. Every call fails with a retrieval error naming the backend.
type unavailableRetriever struct {
	backend string
}

func (u unavailableRetriever) Retrieve(_ context.Context, _ string, _ int) ([]rag.Document, error) {
	return nil, &rag.RetrievalError{
		Backend: u.backend,
		Err:     fmt.Errorf("backend not configured"),
	}
}

// buildPingers assembles the readiness probes for the dependencies that are
// actually configured.
func buildPingers(bundle *pipelineBundle) []server.Pinger {
	pingers := []server.Pinger{
		server.NewLLMPinger(bundle.Model, getEnvOrDefault("MODEL_PROVIDER", "ollama")),
	}
	if bundle.QdrantStore != nil {
		pingers = append(pingers, server.NewQdrantPinger(bundle.QdrantStore.Client()))
	}
	return pingers
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
