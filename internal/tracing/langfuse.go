// Package tracing wires the optional Langfuse callback handler into eino so
// every model call in a pipeline run is traced end to end.
package tracing

import (
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"
)

// defaultHost is used when LANGFUSE_HOST is unset, matching a local
// docker-compose Langfuse deployment.
const defaultHost = "http://localhost:3000"

// Setup builds the Langfuse callback handler when both LANGFUSE_PUBLIC_KEY
// and LANGFUSE_SECRET_KEY are present. The third return value reports whether
// tracing was enabled; when it is false the handler and flush function are
// nil and the caller should skip callback registration entirely. When
// enabled, the flush function must run before process exit or buffered
// traces are lost.
func Setup() (callbacks.Handler, func(), bool) {
	cfg := langfuse.Config{
		Host:      os.Getenv("LANGFUSE_HOST"),
		PublicKey: os.Getenv("LANGFUSE_PUBLIC_KEY"),
		SecretKey: os.Getenv("LANGFUSE_SECRET_KEY"),
	}
	if cfg.PublicKey == "" || cfg.SecretKey == "" {
		return nil, nil, false
	}
	if cfg.Host == "" {
		cfg.Host = defaultHost
	}

	handler, flush := langfuse.NewLangfuseHandler(&cfg)
	return handler, flush, true
}
