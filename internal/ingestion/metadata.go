package ingestion

import (
	"net/url"
	"strings"
)

// InferredMetadata holds the topic and doc type inferred from an article
// URL's structure. CLI flags take precedence over inferred values — this is
// the "best-effort" fallback when the user doesn't specify explicit metadata.
type InferredMetadata struct {
	// Topic is the knowledge-base topic label (e.g. "agents", "prompt-engineering").
	Topic string
	// DocType classifies the document kind (post, paper, readme, article).
	DocType string
}

// topicKeywords maps URL slug fragments to our canonical topic labels.
// Checked in order — the first match wins.
var topicKeywords = []struct {
	fragment string
	topic    string
}{
	{"agent", "agents"},
	{"prompt", "prompt-engineering"},
	{"adversarial", "adversarial-attacks"},
	{"attack", "adversarial-attacks"},
	{"hallucination", "hallucination"},
	{"retrieval", "retrieval"},
	{"rag", "retrieval"},
	{"embedding", "embeddings"},
	{"fine-tun", "fine-tuning"},
	{"finetun", "fine-tuning"},
}

// InferMetadata inspects the article source URL and returns best-effort
// metadata. If the URL doesn't match any known pattern the returned fields
// contain sensible defaults ("general", "article").
//
// Supported URL patterns:
//
//	lilianweng.github.io/posts/{date-slug}/
//	arxiv.org/abs/... and arxiv.org/pdf/...
//	github.com/{org}/{repo}/...
//	huggingface.co/blog/... and huggingface.co/docs/...
func InferMetadata(rawURL string) InferredMetadata {
	m := InferredMetadata{
		Topic:   "general",
		DocType: "article",
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return m
	}

	host := strings.ToLower(parsed.Hostname())
	path := strings.ToLower(parsed.Path)
	segments := trimSegments(path)

	switch {
	case host == "lilianweng.github.io":
		m.DocType = "post"
		inferTopicFromSlug(segments, &m)

	case host == "arxiv.org":
		m.DocType = "paper"
		inferTopicFromSlug(segments, &m)

	case host == "github.com":
		m.DocType = "readme"
		inferTopicFromSlug(segments, &m)

	case host == "huggingface.co":
		inferHuggingFace(segments, &m)

	default:
		inferTopicFromSlug(segments, &m)
	}

	return m
}

// inferTopicFromSlug scans the path segments for a known topic keyword.
func inferTopicFromSlug(segments []string, m *InferredMetadata) {
	for _, seg := range segments {
		for _, kw := range topicKeywords {
			if strings.Contains(seg, kw.fragment) {
				m.Topic = kw.topic
				return
			}
		}
	}
}

// inferHuggingFace handles huggingface.co/blog/... and huggingface.co/docs/...
func inferHuggingFace(segments []string, m *InferredMetadata) {
	if len(segments) == 0 {
		return
	}
	switch segments[0] {
	case "blog":
		m.DocType = "post"
	case "docs", "learn":
		m.DocType = "guide"
	case "papers":
		m.DocType = "paper"
	}
	inferTopicFromSlug(segments, m)
}

// trimSegments splits a URL path into non-empty lowercase segments.
func trimSegments(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
