// Package version holds build information, set at build time via ldflags:
//
//	-X github.com/winghaptics/wwbridge/internal/version.Version=1.2.0
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "0.0.1"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// FullVersion is the one-line version string shown by the CLI.
var FullVersion = Full()

// Full renders version, commit, build date and Go runtime.
func Full() string {
	return fmt.Sprintf("%s (commit %s, built %s, %s %s/%s)",
		Version, GitCommit, BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
