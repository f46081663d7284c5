// Package version exposes build identification stamped in at link time via
// -ldflags="-X github.com/banshee-data/bearing.report/internal/version.Version=...".
package version

import "fmt"

var (
	// Version is the tracker release version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String renders the full build identification for startup logs.
func String() string {
	return fmt.Sprintf("%s (%s, built %s)", Version, GitSHA, BuildTime)
}
