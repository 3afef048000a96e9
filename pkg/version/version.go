// Package version reports build information of the verstree binary.
package version

import (
	"fmt"
	"runtime/debug"
)

// Build information. Release builds set these with -ldflags -X.
var (
	Version = "dev"
	Commit  = "<unknown>"
	Date    = "<unknown>"
)

// InitBinaryVersion fills build information the linker did not set from
// the module build info embedded by the go tool.
func InitBinaryVersion() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	fill(info)
}

func fill(info *debug.BuildInfo) {
	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}

	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if Commit == "<unknown>" {
				Commit = s.Value
			}
		case "vcs.time":
			if Date == "<unknown>" {
				Date = s.Value
			}
		}
	}
}

// String formats the build information for the version command.
func String() string {
	return fmt.Sprintf("verstree %s (commit: %s, built: %s)", Version, Commit, Date)
}
