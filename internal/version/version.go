// Package version holds the build version, set with -ldflags at release.
package version

var (
	Version   = "0.1.0"
	GitCommit = "dev"
)

// String returns the version with its commit.
func String() string {
	return Version + " (" + GitCommit + ")"
}
