// Package version carries build identification, stamped at link time via
// -ldflags "-X github.com/banshee-data/gestures/internal/version.Version=...".
package version

var (
	// Version is the release version of the gesture engine.
	Version = "dev"
	// GitSHA is the git commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String formats the build identity for logs and the health endpoint.
func String() string {
	return Version + " (" + GitSHA + ")"
}
