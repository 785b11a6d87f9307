// Package version holds refvec's build information.
package version

import (
	"fmt"
	"runtime"
)

// Version is set with -ldflags "-X github.com/Aman-CERP/refvec/pkg/version.Version=..."
// at release time.
var Version = "dev"

var (
	// Commit is the short git commit hash.
	Commit = "unknown"
	// Date is the build date, RFC3339.
	Date = "unknown"
)

// BuildInfo is the JSON form of the build information.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// String returns the one-line version banner.
func String() string {
	return fmt.Sprintf("refvec %s (commit: %s, built: %s, go: %s, %s/%s)",
		Version, Commit, Date, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// GetInfo returns the build information.
func GetInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// Short returns just the version number.
func Short() string {
	return Version
}
