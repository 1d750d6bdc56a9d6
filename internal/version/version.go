// Package version holds build information set with -ldflags.
package version

import "fmt"

// Set at build time, e.g.
//
//	go build -ldflags "-X reqlog/internal/version.Version=v1.2.0"
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info returns a one-line description of the build.
func Info() string {
	return fmt.Sprintf("reqlog %s (commit %s, built %s)", Version, Commit, Date)
}
