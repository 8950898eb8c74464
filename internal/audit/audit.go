// Package audit logs CLI command invocations with a sanitised snapshot of
// the environment, so operators can reconstruct what configuration a run saw
// without secret values ever reaching the log.
package audit

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// auditEntry names one environment variable included in the audit snapshot.
// Secret entries are reduced to "set"/"unset".
type auditEntry struct {
	key    string
	secret bool
}

// auditKeys is the ordered env var snapshot written on every command start.
// It is also the source of truth for which keys are secret.
var auditKeys = []auditEntry{
	{key: "MODEL_PROVIDER"},
	{key: "OLLAMA_HOST"},
	{key: "OLLAMA_MODEL"},
	{key: "OPENAI_API_KEY", secret: true},
	{key: "OPENAI_MODEL"},
	{key: "AZURE_OPENAI_API_KEY", secret: true},
	{key: "AZURE_OPENAI_ENDPOINT"},
	{key: "AZURE_OPENAI_DEPLOYMENT"},
	{key: "GOOGLE_API_KEY", secret: true},
	{key: "GEMINI_MODEL"},
	{key: "AWS_REGION"},
	{key: "BEDROCK_MODEL_ID"},
	{key: "EMBEDDING_PROVIDER"},
	{key: "EMBEDDING_MODEL"},
	{key: "EMBEDDING_API_KEY", secret: true},
	{key: "QDRANT_HOST"},
	{key: "QDRANT_PORT"},
	{key: "QDRANT_COLLECTION"},
	{key: "QDRANT_API_KEY", secret: true},
	{key: "TAVILY_API_KEY", secret: true},
	{key: "CRAG_API_KEY", secret: true},
	{key: "CRAG_RUNS_DB"},
	{key: "CRAG_MAX_RETRIES"},
	{key: "CRAG_FALLBACK_ROUTE"},
	{key: "CRAG_KB_TOPICS"},
	{key: "LOG_LEVEL"},
	{key: "LOG_FORMAT"},
	{key: "LANGFUSE_PUBLIC_KEY", secret: true},
	{key: "LANGFUSE_SECRET_KEY", secret: true},
}

// secretEnvKeys indexes the secret entries of auditKeys, plus secrets that
// are never snapshotted but may appear in ad-hoc log calls.
var secretEnvKeys = func() map[string]bool {
	m := map[string]bool{
		"AWS_SECRET_ACCESS_KEY":    true,
		"AWS_SESSION_TOKEN":        true,
		"AWS_BEARER_TOKEN_BEDROCK": true,
	}
	for _, e := range auditKeys {
		if e.secret {
			m[e.key] = true
		}
	}
	return m
}()

// LogCommandStart emits one structured entry recording the command name, the
// resolved config file, and the sanitised environment snapshot.
func LogCommandStart(log *slog.Logger, command string, configPath string) {
	attrs := make([]slog.Attr, 0, len(auditKeys)+2)
	attrs = append(attrs,
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	)
	for _, entry := range auditKeys {
		attrs = append(attrs, slog.String(entry.key, SanitiseKey(entry.key, os.Getenv(entry.key))))
	}

	log.LogAttrs(context.Background(), slog.LevelInfo, "audit: command start", attrs...)
}

// SanitiseKey renders an env value for logging: secret keys become
// "set"/"unset", everything else is the value itself or "unset".
func SanitiseKey(key, value string) string {
	if secretEnvKeys[key] {
		return presence(value)
	}
	return valOrUnset(value)
}

func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

func valOrUnset(v string) string {
	if v != "" {
		return v
	}
	return "unset"
}

// sanitiseConfigPath collapses the home directory to "~" and maps the empty
// path to "none".
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	if home, err := os.UserHomeDir(); err == nil && strings.HasPrefix(p, home) {
		return "~" + strings.TrimPrefix(p, home)
	}
	return p
}
