package version

import (
	"fmt"
	"runtime/debug"
)

// Placeholders replaced at build time via -ldflags "-X"
const (
	devTag       = "dev"
	devCommit    = "123abc"
	devBuildTime = "now"
)

var (
	tag       = devTag
	commit    = devCommit
	buildTime = devBuildTime
)

const template = "%s (%s) built at %s\nhttps://github.com/noot-app/carbon-footprint-mcp-server/releases/tag/%s"

// buildInfoReader is swapped in tests
var buildInfoReader = debug.ReadBuildInfo

// Tag returns the release tag, "dev" for local builds
func Tag() string {
	return tag
}

// String returns the full version banner
// VCS stamping fills commit and time when ldflags left the placeholders in place.
func String() string {
	currentCommit := commit
	currentDate := buildTime

	if info, ok := buildInfoReader(); ok {
		for _, setting := range info.Settings {
			switch {
			case setting.Key == "vcs.revision" && commit == devCommit:
				currentCommit = setting.Value
			case setting.Key == "vcs.time" && buildTime == devBuildTime:
				currentDate = setting.Value
			}
		}
	}

	return fmt.Sprintf(template, tag, currentCommit, currentDate, tag)
}
