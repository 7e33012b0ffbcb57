package main

import (
	"runtime/debug"
)

// Build-time variables injected via ldflags
//
//nolint:gochecknoglobals // These are build-time injected variables
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// BuildInfo resolves version details from ldflags, falling back to the module build info
type BuildInfo struct {
	version   string
	commit    string
	buildDate string
	modified  bool
}

// NewBuildInfo reads ldflags values and the embedded build settings
func NewBuildInfo() *BuildInfo {
	b := &BuildInfo{
		version:   Version,
		commit:    Commit,
		buildDate: BuildDate,
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return b
	}

	if b.version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		b.version = info.Main.Version
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if b.commit == "none" && len(setting.Value) >= 7 {
				b.commit = setting.Value[:7]
			}
		case "vcs.time":
			if b.buildDate == "unknown" {
				b.buildDate = setting.Value
			}
		case "vcs.modified":
			b.modified = setting.Value == "true"
		}
	}

	return b
}

// Version returns the release version
func (b *BuildInfo) Version() string { return b.version }

// Commit returns the short commit hash
func (b *BuildInfo) Commit() string { return b.commit }

// BuildDate returns when the binary was built
func (b *BuildInfo) BuildDate() string { return b.buildDate }

// IsModified reports whether the build had uncommitted changes
func (b *BuildInfo) IsModified() bool { return b.modified }
