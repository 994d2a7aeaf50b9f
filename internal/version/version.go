// Package version reports build information for pagetint. Release builds set
// the variables with ldflags; other builds fall back to the module and VCS
// data recorded by the Go toolchain.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

const unknown = "unknown"

var (
	// Version is the semantic version, e.g. -ldflags "-X github.com/jmylchreest/pagetint/internal/version.Version=x.y.z".
	Version = "dev"

	// Commit is the git commit hash of the build.
	Commit = unknown

	// Date is the build date in RFC3339 format.
	Date = unknown
)

// Info is the resolved build information.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	Modified  bool   `json:"modified,omitempty"`
}

var (
	buildOnce sync.Once
	buildInfo *debug.BuildInfo
)

func readBuildInfo() *debug.BuildInfo {
	buildOnce.Do(func() {
		if bi, ok := debug.ReadBuildInfo(); ok {
			buildInfo = bi
		}
	})
	return buildInfo
}

// GetInfo returns the version information, filling gaps left by ldflags
// from the embedded build info.
func GetInfo() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
	return fill(info, readBuildInfo())
}

func fill(info Info, bi *debug.BuildInfo) Info {
	if bi == nil {
		return info
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == unknown {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.Date == unknown {
				info.Date = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

func (i Info) String() string {
	if i.Commit != unknown && i.Date != unknown {
		commit := i.Commit
		if len(commit) > 8 {
			commit = commit[:8]
		}
		if i.Modified {
			commit += "-dirty"
		}
		return fmt.Sprintf("pagetint version %s (commit: %s, built: %s, %s, %s)",
			i.Version, commit, i.Date, i.GoVersion, i.Platform)
	}
	return fmt.Sprintf("pagetint version %s (%s, %s)", i.Version, i.GoVersion, i.Platform)
}

// String returns a human-readable version string.
func String() string {
	return GetInfo().String()
}

// Short returns a short version string suitable for CLI output.
func Short() string {
	return GetInfo().Version
}
