// Package version carries build metadata set through -ldflags.
package version

import "fmt"

// Overridden via -ldflags "-X github.com/shettysaish20/Hybrid-DM-MCP-App/internal/version.Version=...".
var (
	Version   = "0.1.0"
	Commit    = "dev"
	BuildDate = "unknown"
)

// Info is the build metadata reported by the CLI and the daemon.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// Current returns the metadata of this binary.
func Current() Info {
	return Info{Version: Version, Commit: Commit, BuildDate: BuildDate}
}

// Full returns a human-friendly version string.
func Full() string {
	return Current().String()
}

func (i Info) String() string {
	return fmt.Sprintf("%s (commit:%s, built:%s)", i.Version, i.Commit, i.BuildDate)
}
