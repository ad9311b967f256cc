// Package version holds build metadata injected with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/banshee-data/gaitsync/internal/version.Version=v0.3.0"
package version

import "fmt"

var (
	// Version is the release tag, "dev" for local builds
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build metadata for the version command.
func String() string {
	return fmt.Sprintf("gaitsync %s (commit %s, built %s)", Version, GitSHA, BuildTime)
}
