// Package version holds build metadata injected via -ldflags.
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// GoVersion returns the Go runtime version string.
func GoVersion() string { return runtime.Version() }

// String returns a single-line summary suitable for logs and the
// User-Agent header sent to WordPress.
func String() string {
	return fmt.Sprintf("content-orchestrator/%s (%s)", Version, GitCommit)
}
