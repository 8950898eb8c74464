// Package websearch implements the live web search retrieval backend behind
// the pipeline's websearch route. It talks to a Tavily-compatible search API
// via plain HTTP — no additional SDK dependencies are required.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/54b3r/crag-go/internal/rag"
)

// defaultEndpoint is the Tavily search API endpoint used when no override
// is configured.
const defaultEndpoint = "https://api.tavily.com/search"

// Config holds the settings for constructing a Client.
type Config struct {
	// Endpoint is the search API URL. Defaults to the Tavily endpoint.
	Endpoint string
	// APIKey is the search API authentication key.
	APIKey string
	// DefaultTopK is the result count used when Retrieve is called with
	// topK=0. Defaults to 5.
	DefaultTopK int
	// Timeout is the per-request HTTP timeout. Defaults to 30s.
	Timeout time.Duration
}

// Client implements rag.Retriever against a Tavily-compatible web search API.
// It is safe for concurrent use.
type Client struct {
	// endpoint is the resolved search API URL.
	endpoint string
	// apiKey is the API authentication key.
	apiKey string
	// defaultTopK is the fallback result count.
	defaultTopK int
	// client is the shared HTTP client with a sensible timeout.
	client *http.Client
}

// NewClient constructs a Client from the given config.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, fmt.Errorf("websearch: API key is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	topK := cfg.DefaultTopK
	if topK <= 0 {
		topK = 5
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint:    endpoint,
		apiKey:      cfg.APIKey,
		defaultTopK: topK,
		client:      &http.Client{Timeout: timeout},
	}, nil
}

// searchRequest is the JSON body sent to the search endpoint.
type searchRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

// searchResponse is the JSON body returned from the search endpoint.
type searchResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float32 `json:"score"`
	} `json:"results"`
	Error string `json:"error,omitempty"`
}

// Retrieve performs a web search for the question and converts the results
// into evidence documents. The result URL becomes the document's source tag.
// An empty result set is returned as-is — the pipeline treats it as a signal,
// not a failure.
func (c *Client) Retrieve(ctx context.Context, question string, topK int) ([]rag.Document, error) {
	if topK <= 0 {
		topK = c.defaultTopK
	}

	payload, err := json.Marshal(searchRequest{
		APIKey:     c.apiKey,
		Query:      question,
		MaxResults: topK,
	})
	if err != nil {
		return nil, fmt.Errorf("websearch: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("websearch: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("websearch: request failed: %w", err)
	}
	defer resp.Body.Close()

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("websearch: decode response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if result.Error != "" {
			msg = result.Error
		}
		return nil, fmt.Errorf("websearch: %s", msg)
	}

	docs := make([]rag.Document, 0, len(result.Results))
	for _, r := range result.Results {
		docs = append(docs, rag.Document{
			Content: r.Content,
			Source:  r.URL,
			Score:   r.Score,
			Metadata: map[string]string{
				"title": r.Title,
			},
		})
	}

	return docs, nil
}
