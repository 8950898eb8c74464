package ingestion

import "testing"

func TestInferMetadata(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		url     string
		topic   string
		docType string
	}{
		// ── Lilian Weng blog ────────────────────────────────────────────
		{
			name:    "weng agents post",
			url:     "https://lilianweng.github.io/posts/2023-06-23-agent/",
			topic:   "agents",
			docType: "post",
		},
		{
			name:    "weng prompt engineering post",
			url:     "https://lilianweng.github.io/posts/2023-03-15-prompt-engineering/",
			topic:   "prompt-engineering",
			docType: "post",
		},
		{
			name:    "weng adversarial attacks post",
			url:     "https://lilianweng.github.io/posts/2023-10-25-adv-attack-llm/",
			topic:   "adversarial-attacks",
			docType: "post",
		},
		{
			name:    "weng hallucination post",
			url:     "https://lilianweng.github.io/posts/2024-07-07-hallucination/",
			topic:   "hallucination",
			docType: "post",
		},
		{
			name:    "weng post with unknown slug",
			url:     "https://lilianweng.github.io/posts/2021-01-01-something-else/",
			topic:   "general",
			docType: "post",
		},
		// ── arXiv ───────────────────────────────────────────────────────
		{
			name:    "arxiv abstract",
			url:     "https://arxiv.org/abs/2401.15884",
			topic:   "general",
			docType: "paper",
		},
		{
			name:    "arxiv pdf with rag slug",
			url:     "https://arxiv.org/pdf/corrective-rag-paper",
			topic:   "retrieval",
			docType: "paper",
		},
		// ── GitHub ──────────────────────────────────────────────────────
		{
			name:    "github repo",
			url:     "https://github.com/someorg/agent-toolkit",
			topic:   "agents",
			docType: "readme",
		},
		// ── Hugging Face ────────────────────────────────────────────────
		{
			name:    "huggingface blog",
			url:     "https://huggingface.co/blog/rag-evaluation",
			topic:   "retrieval",
			docType: "post",
		},
		{
			name:    "huggingface docs",
			url:     "https://huggingface.co/docs/transformers/fine-tuning",
			topic:   "fine-tuning",
			docType: "guide",
		},
		{
			name:    "huggingface papers",
			url:     "https://huggingface.co/papers/2310.11511",
			topic:   "general",
			docType: "paper",
		},
		// ── Generic host with recognisable slug ─────────────────────────
		{
			name:    "generic blog with embedding slug",
			url:     "https://example.com/blog/understanding-embedding-models",
			topic:   "embeddings",
			docType: "article",
		},
		// ── Fallback / unknown ──────────────────────────────────────────
		{
			name:    "completely unknown URL",
			url:     "https://example.com/some/random/page",
			topic:   "general",
			docType: "article",
		},
		{
			name:    "malformed URL",
			url:     "://not-a-url",
			topic:   "general",
			docType: "article",
		},
		{
			name:    "empty string",
			url:     "",
			topic:   "general",
			docType: "article",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := InferMetadata(tt.url)

			if got.Topic != tt.topic {
				t.Errorf("Topic: got %q, want %q", got.Topic, tt.topic)
			}
			if got.DocType != tt.docType {
				t.Errorf("DocType: got %q, want %q", got.DocType, tt.docType)
			}
		})
	}
}
