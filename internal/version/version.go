// Package version holds build metadata injected with -ldflags.
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build metadata for --version output.
func String(program string) string {
	return fmt.Sprintf("%s %s (git %s, built %s)", program, Version, GitSHA, BuildTime)
}
