// Package buildinfo describes the build of the difflow binary.
package buildinfo

import (
	"fmt"
	"runtime/debug"
)

// Placeholders set by the default build; release builds override them with -ldflags.
const (
	DefaultVersion    = "dev"
	DefaultCommitHash = "n/a"
	DefaultBuildDate  = "<unknown>"
)

// BuildInfo holds all sorts of information about the build of an executable artifact.
type BuildInfo struct {
	Version    string
	CommitHash string
	BuildDate  string
	GoVersion  string
}

// New returns the build info for the given linker-provided values. Placeholders are replaced by
// the VCS stamp of the binary when available.
func New(version, commitHash, buildDate string) BuildInfo {
	info := BuildInfo{Version: version, CommitHash: commitHash, BuildDate: buildDate}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	return info.fill(bi)
}

func (i BuildInfo) fill(bi *debug.BuildInfo) BuildInfo {
	i.GoVersion = bi.GoVersion
	if i.Version == DefaultVersion && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		i.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if i.CommitHash == DefaultCommitHash && s.Value != "" {
				i.CommitHash = s.Value
				if len(i.CommitHash) > 12 {
					i.CommitHash = i.CommitHash[:12]
				}
			}
		case "vcs.time":
			if i.BuildDate == DefaultBuildDate && s.Value != "" {
				i.BuildDate = s.Value
			}
		}
	}
	return i
}

// String returns the build info as a string.
func (i BuildInfo) String() string {
	s := fmt.Sprintf("version %s (%s) built on %s", i.Version, i.CommitHash, i.BuildDate)
	if i.GoVersion != "" {
		s += " with " + i.GoVersion
	}
	return s
}
