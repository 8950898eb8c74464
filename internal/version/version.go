// Package version exposes the build metadata stamped into the crag binary.
//
// Release builds inject real values with -ldflags, e.g.:
//
//	go build -ldflags="-X github.com/54b3r/crag-go/internal/version.Version=v0.3.0 \
//	                    -X github.com/54b3r/crag-go/internal/version.Commit=4f2a91c \
//	                    -X github.com/54b3r/crag-go/internal/version.BuildDate=2026-08-31"
//
// A plain `go build` or `go run` leaves the defaults below in place, so the
// binary always reports something sensible.
package version

import "fmt"

// Version is the semantic version of the binary. "dev" for local builds.
var Version = "dev"

// Commit is the short git SHA the binary was built from.
var Commit = "unknown"

// BuildDate is the UTC build date in RFC3339 format.
var BuildDate = "unknown"

// String renders the full version line shown by `crag version`.
func String() string {
	return fmt.Sprintf("crag %s (commit: %s, built: %s)", Version, Commit, BuildDate)
}
