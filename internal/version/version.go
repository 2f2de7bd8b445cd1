// Package version holds build metadata for the kestrel binary,
// injected via ldflags at release time.
package version

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String renders the version with its commit for display,
// e.g. "dev (unknown)".
func String() string {
	return Version + " (" + Commit + ")"
}
