package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestInfoString(t *testing.T) {
	base := Info{Version: "dev", Commit: unknown, Date: unknown, GoVersion: "go1.25.1", Platform: "linux/amd64"}

	if got, want := base.String(), "pagetint version dev (go1.25.1, linux/amd64)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	release := base
	release.Version = "v1.2.0"
	release.Commit = "0123456789abcdef"
	release.Date = "2026-01-02T03:04:05Z"
	want := "pagetint version v1.2.0 (commit: 01234567, built: 2026-01-02T03:04:05Z, go1.25.1, linux/amd64)"
	if got := release.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	release.Commit = "abc"
	release.Modified = true
	if got := release.String(); !strings.Contains(got, "commit: abc-dirty,") {
		t.Errorf("expected short dirty commit, got %q", got)
	}
}

func TestFillFromBuildInfo(t *testing.T) {
	bi := &debug.BuildInfo{
		Main: debug.Module{Version: "v0.3.1"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "feedfacecafebeef"},
			{Key: "vcs.time", Value: "2026-03-04T05:06:07Z"},
			{Key: "vcs.modified", Value: "false"},
		},
	}

	got := fill(Info{Version: "dev", Commit: unknown, Date: unknown}, bi)
	if got.Version != "v0.3.1" || got.Commit != "feedfacecafebeef" || got.Date != "2026-03-04T05:06:07Z" || got.Modified {
		t.Errorf("fill() = %+v", got)
	}

	// ldflags values win over build info.
	got = fill(Info{Version: "v9.9.9", Commit: "c0ffee", Date: "today"}, bi)
	if got.Version != "v9.9.9" || got.Commit != "c0ffee" || got.Date != "today" {
		t.Errorf("fill() overrode ldflags values: %+v", got)
	}

	if got := fill(Info{Version: "dev"}, &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}}); got.Version != "dev" {
		t.Errorf("devel builds should keep dev, got %q", got.Version)
	}
	if got := fill(Info{Version: "dev"}, nil); got.Version != "dev" {
		t.Errorf("nil build info changed version to %q", got.Version)
	}
}
