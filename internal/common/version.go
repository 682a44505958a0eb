package common

import "fmt"

// Build identity, overridden at link time:
//
//	-ldflags "-X .../internal/common.Version=1.2.0 -X .../internal/common.GitCommit=abc1234"
var (
	Version   = "dev"
	Build     = "unknown"
	GitCommit = "unknown"
)

// GetVersion returns the release version string.
func GetVersion() string {
	return Version
}

// GetBuild returns the build timestamp.
func GetBuild() string {
	return Build
}

// GetGitCommit returns the source commit hash.
func GetGitCommit() string {
	return GitCommit
}

// GetFullVersion combines version, build and commit for crash reports and
// the version endpoint.
func GetFullVersion() string {
	return fmt.Sprintf("%s (build: %s, commit: %s)", Version, Build, GitCommit)
}
