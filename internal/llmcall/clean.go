package llmcall

import "strings"

// TrimCodeFence strips a single surrounding markdown code fence from s, if
// present. Models frequently wrap JSON decisions in ```json fences even when
// instructed not to; the structured-decision contract tolerates the fence
// but nothing else.
func TrimCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop an optional language tag on the opening fence line.
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		first := strings.TrimSpace(s[:idx])
		if first == "json" || first == "" {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
