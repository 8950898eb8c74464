package embedder

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// chatModelFragments are name fragments of chat/completion models. A model
// matching one of these was almost certainly not trained for embedding, so
// using it for the knowledge base would silently produce useless vectors.
var chatModelFragments = []string{
	"gpt-3.5", "gpt-35", "gpt-4",
	"o1", "o3",
	"llama2", "llama-2", "llama3", "llama-3",
	"mistral", "mixtral", "gemma", "phi-", "phi3",
	"claude", "command-r", "deepseek", "qwen",
	"solar", "vicuna", "falcon", "yi-",
}

// looksLikeChatModel reports whether the model name resembles a chat model
// rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, fragment := range chatModelFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// firstEnv returns the value of the first set, non-empty variable among keys.
func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// ValidateForRAG is the startup pre-flight for the knowledge-base path. When
// QDRANT_HOST is set it verifies the embedding backend has the credentials it
// needs, so misconfiguration surfaces as one clear error at startup instead
// of a cryptic failure on the first vectorstore-routed question. When
// QDRANT_HOST is unset there is nothing to validate and it returns nil.
func ValidateForRAG(log *slog.Logger) error {
	if os.Getenv("QDRANT_HOST") == "" {
		return nil
	}

	backend := os.Getenv("EMBEDDING_PROVIDER")
	if backend == "" {
		backend = getEnvOrDefault("MODEL_PROVIDER", "ollama")
		// Inheriting a non-local chat provider as the embedding backend is
		// usually an oversight worth flagging.
		if backend != "ollama" {
			log.Warn("embedder: QDRANT_HOST is set but EMBEDDING_PROVIDER is not — "+
				"inheriting MODEL_PROVIDER as embedding backend",
				slog.String("backend", backend),
				slog.String("hint", "set EMBEDDING_PROVIDER=ollama (or openai/azure) to be explicit"),
			)
		}
	}

	switch backend {
	case "openai":
		if firstEnv("EMBEDDING_API_KEY", "OPENAI_API_KEY") == "" {
			return fmt.Errorf("embedder: QDRANT_HOST is set but no OpenAI API key found — set OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
	case "azure":
		if firstEnv("EMBEDDING_API_KEY", "AZURE_OPENAI_API_KEY") == "" {
			return fmt.Errorf("embedder: QDRANT_HOST is set but no Azure API key found — set AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		if firstEnv("EMBEDDING_ENDPOINT", "AZURE_OPENAI_ENDPOINT") == "" {
			return fmt.Errorf("embedder: QDRANT_HOST is set but no Azure endpoint found — set AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
	case "bedrock", "gemini":
		return fmt.Errorf("embedder: QDRANT_HOST is set but %s embedding is not implemented — set EMBEDDING_PROVIDER to ollama, openai, or azure", backend)
	}

	if model := os.Getenv("EMBEDDING_MODEL"); model != "" && looksLikeChatModel(model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, not an embedding model — "+
			"knowledge-base search quality will suffer",
			slog.String("model", model),
			slog.String("hint", "use a dedicated embedding model e.g. nomic-embed-text, text-embedding-3-small"),
		)
	}

	return nil
}
