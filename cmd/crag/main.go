// Command crag is the entry point for the corrective RAG answer pipeline.
// It provides a CLI interface (via Cobra) and an optional HTTP server for
// service use.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/crag-go/cmd/crag/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
