// Package version reports build information for memesearch.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version is the release version, injected at build time:
//
//	-ldflags "-X github.com/Aman-CERP/memesearch/pkg/version.Version=v0.3.0"
var Version = "dev"

// Set via ldflags alongside Version.
var (
	Commit = "unknown"
	Date   = "unknown"
)

// BuildInfo is structured version information for JSON output.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetInfo returns structured version information. A commit missing from
// ldflags falls back to the VCS stamp recorded by the Go toolchain.
func GetInfo() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
	if info.Commit == "unknown" {
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, s := range bi.Settings {
				switch s.Key {
				case "vcs.revision":
					if len(s.Value) > 12 {
						s.Value = s.Value[:12]
					}
					info.Commit = s.Value
				case "vcs.time":
					if info.Date == "unknown" {
						info.Date = s.Value
					}
				}
			}
		}
	}
	return info
}

// String returns a one-line version string with build info.
func String() string {
	i := GetInfo()
	return fmt.Sprintf("memesearch %s (commit: %s, built: %s, go: %s, %s/%s)",
		i.Version, i.Commit, i.Date, i.GoVersion, i.OS, i.Arch)
}

// Short returns just the version string.
func Short() string {
	return Version
}

// UserAgent identifies memesearch to the embedding service.
func UserAgent() string {
	return fmt.Sprintf("memesearch/%s (%s/%s)", Version, runtime.GOOS, runtime.GOARCH)
}
