// Package router classifies an incoming question into a retrieval route:
// the indexed knowledge base (vectorstore) or live web search (websearch).
// Classification happens exactly once per pipeline run — a rewritten query
// re-retrieves through the same route, it never re-routes.
package router

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/crag-go/internal/llmcall"
)

// Route identifies the retrieval backend selected for a question.
type Route string

const (
	// RouteVectorStore retrieves from the indexed knowledge base.
	RouteVectorStore Route = "vectorstore"
	// RouteWebSearch retrieves from live web search.
	RouteWebSearch Route = "websearch"
)

// ParseRoute converts a string into a Route, rejecting anything outside the
// closed label set.
func ParseRoute(s string) (Route, error) {
	switch Route(s) {
	case RouteVectorStore, RouteWebSearch:
		return Route(s), nil
	default:
		return "", fmt.Errorf("router: unknown route %q — valid values: vectorstore, websearch", s)
	}
}

// ClassificationError is the typed failure for a malformed or unparseable
// classification response. The pipeline does not abort on it — it falls back
// to the configured default route and proceeds.
type ClassificationError struct {
	// Raw is the model output that failed to parse.
	Raw string
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *ClassificationError) Error() string {
	return fmt.Sprintf("router: classification failed: %v", e.Err)
}

// Unwrap returns the underlying cause for errors.Is / errors.As chains.
func (e *ClassificationError) Unwrap() error { return e.Err }

// defaultKnowledgeBaseTopics describes the default contents of the indexed
// knowledge base. Questions matching these topics route to the vector store;
// everything else routes to web search.
const defaultKnowledgeBaseTopics = "agent memory, prompt engineering, and adversarial attacks on LLMs"

// systemPrompt is the classification instruction. The response contract is a
// strict single-key JSON object so parsing never depends on free-text
// interpretation.
const systemPrompt = `You are an expert at routing a user question to the right data source.

The knowledge base (vectorstore) contains documents about: %s.
Use "vectorstore" for questions covered by those topics. For anything else,
including current events and topics outside the knowledge base, use "websearch".

Respond with ONLY a JSON object in this exact shape — no markdown fencing,
no explanation:

{"route": "vectorstore"}

or

{"route": "websearch"}`

// Config holds the Router settings.
type Config struct {
	// KnowledgeBaseTopics describes what the vector store contains, so the
	// classifier knows when the knowledge base applies. Defaults to the
	// built-in topic list if empty.
	KnowledgeBaseTopics string
}

// Router is the LLM-backed question classifier. It is stateless and safe
// for concurrent use.
type Router struct {
	// caller is the shared LLM gateway.
	caller *llmcall.Caller

	// topics describes the knowledge base contents for the prompt.
	topics string
}

// New constructs a Router using the shared LLM caller.
func New(caller *llmcall.Caller, cfg *Config) (*Router, error) {
	if caller == nil {
		return nil, fmt.Errorf("router: caller must not be nil")
	}
	topics := defaultKnowledgeBaseTopics
	if cfg != nil && cfg.KnowledgeBaseTopics != "" {
		topics = cfg.KnowledgeBaseTopics
	}
	return &Router{caller: caller, topics: topics}, nil
}

// routeDecision is the strict JSON schema of a classification response.
type routeDecision struct {
	Route string `json:"route"`
}

// Classify returns the retrieval route for the question. A response outside
// the closed {"route": "vectorstore"|"websearch"} contract is a
// *ClassificationError; transport failures from the caller are returned
// as-is.
func (r *Router) Classify(ctx context.Context, question string) (Route, error) {
	msgs := []*schema.Message{
		schema.SystemMessage(fmt.Sprintf(systemPrompt, r.topics)),
		schema.UserMessage(question),
	}

	raw, err := r.caller.GenerateText(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("router: classify call failed: %w", err)
	}

	var decision routeDecision
	if err := json.Unmarshal([]byte(llmcall.TrimCodeFence(raw)), &decision); err != nil {
		return "", &ClassificationError{Raw: raw, Err: err}
	}

	route, err := ParseRoute(decision.Route)
	if err != nil {
		return "", &ClassificationError{Raw: raw, Err: err}
	}

	return route, nil
}
