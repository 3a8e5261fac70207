// Package version exposes build metadata.
package version

import (
	"fmt"
	"runtime"

	"github.com/pthm/flowscope/pkg/store"
)

// These variables are set via ldflags by GoReleaser
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info returns formatted version information
func Info() string {
	return fmt.Sprintf("flowscope %s (commit: %s, built: %s, analyzer: v%s) %s",
		Version, Commit, Date, store.AnalyzerVersion, runtime.Version())
}

// Short returns just the version string
func Short() string {
	return Version
}
