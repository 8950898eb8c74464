package embedder

import (
	"fmt"
	"os"
	"strconv"

	"github.com/54b3r/crag-go/internal/rag"
)

// Default embedding models and vector sizes per backend. The dimensions
// match nomic-embed-text (Ollama) and text-embedding-3-small (OpenAI/Azure);
// other models need EMBEDDING_DIMENSIONS set explicitly.
const (
	defaultOllamaModel  = "nomic-embed-text"
	defaultOpenAIModel  = "text-embedding-3-small"
	defaultBedrockModel = "amazon.titan-embed-text-v2"
	defaultGeminiModel  = "text-embedding-004"

	defaultOllamaDimensions = 768
	defaultOpenAIDimensions = 1536
)

// DefaultDimensions resolves the embedding vector size for the given backend
// name. Collection creation must use the same value the embedder produces,
// so callers pre-configuring the vector store go through this rather than
// hardcoding a size. EMBEDDING_DIMENSIONS wins when set.
func DefaultDimensions(backend string) int {
	if v := getEnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	if backend == "ollama" {
		return defaultOllamaDimensions
	}
	return defaultOpenAIDimensions
}

// NewFromEnv constructs a rag.Embedder from environment configuration. The
// embedding backend inherits from the chat provider setup so a single-model
// Ollama deployment needs nothing beyond MODEL_PROVIDER, while the
// EMBEDDING_* variables (PROVIDER, MODEL, API_KEY, ENDPOINT, DIMENSIONS)
// override each inherited value individually.
func NewFromEnv() (rag.Embedder, error) {
	backend := os.Getenv("EMBEDDING_PROVIDER")
	if backend == "" {
		backend = getEnvOrDefault("MODEL_PROVIDER", "ollama")
	}

	switch backend {
	case "ollama":
		return newOllamaFromEnv(), nil
	case "openai":
		return newOpenAIFromEnv()
	case "azure":
		return newAzureFromEnv()
	case "bedrock":
		return nil, fmt.Errorf("embedder: bedrock embedding support is not yet implemented (model: %s)", defaultBedrockModel)
	case "gemini":
		return nil, fmt.Errorf("embedder: gemini embedding support is not yet implemented (model: %s)", defaultGeminiModel)
	default:
		return nil, fmt.Errorf("embedder: unknown backend %q — valid values: ollama, openai, azure, bedrock, gemini", backend)
	}
}

func newOllamaFromEnv() *OllamaEmbedder {
	host := firstEnv("EMBEDDING_ENDPOINT", "OLLAMA_HOST")
	if host == "" {
		host = "http://localhost:11434"
	}
	return NewOllamaEmbedder(&OllamaConfig{
		Host:  host,
		Model: getEnvOrDefault("EMBEDDING_MODEL", defaultOllamaModel),
	})
}

func newOpenAIFromEnv() (*OpenAIEmbedder, error) {
	apiKey := firstEnv("EMBEDDING_API_KEY", "OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
	}
	baseURL := os.Getenv("EMBEDDING_ENDPOINT")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return NewOpenAIEmbedder(&OpenAIConfig{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
		Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", defaultOpenAIDimensions),
	}), nil
}

func newAzureFromEnv() (*OpenAIEmbedder, error) {
	apiKey := firstEnv("EMBEDDING_API_KEY", "AZURE_OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
	}
	endpoint := firstEnv("EMBEDDING_ENDPOINT", "AZURE_OPENAI_ENDPOINT")
	if endpoint == "" {
		return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
	}
	return NewOpenAIEmbedder(&OpenAIConfig{
		BaseURL:    endpoint + "/openai",
		APIKey:     apiKey,
		Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
		Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", defaultOpenAIDimensions),
		Azure:      true,
		APIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2025-04-01-preview"),
	}), nil
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback when unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback when unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
