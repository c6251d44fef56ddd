// Package buildtime tells the version of gwvolman binaries.
package buildtime

import (
	_ "embed"
	"runtime/debug"
	"strings"
)

//go:embed VERSION
var version string

// revision is used when the binary has no vcs info, e.g. built out of a git checkout.
//
//go:embed revision
var revision string

func init() {
	version = strings.TrimSpace(version)
	info, ok := debug.ReadBuildInfo()
	revision = revisionOf(info, ok, strings.TrimSpace(revision))
}

func revisionOf(info *debug.BuildInfo, ok bool, fallback string) string {
	if !ok || info == nil {
		return fallback
	}
	rev, dirty := "", false
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if rev == "" {
		return fallback
	}
	if dirty {
		rev += "-dirty"
	}
	return rev
}

// VERSION is the release version of gwvolman.
func VERSION() string {
	return version
}

func GIT_REVISION() string {
	return revision
}

func VersionString() string {
	return version + " (commit: " + revision + ")"
}
