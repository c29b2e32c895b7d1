package version

import (
	"fmt"
	"runtime"
)

var (
	// These values are set at build time via -ldflags
	Version   = "2.0.0-dev" // Version is the semantic version reported by GetVersion
	GitCommit = "unknown"   // GitCommit is the git commit hash
	BuildDate = "unknown"   // BuildDate is when the binary was built
	Component = "unknown"   // Component identifies which binary this is (simpleremoted, srx)
)

// GetVersion returns the version string sent back on the GetVersion RPC.
func GetVersion() string {
	return Version
}

// GetShortVersion returns a concise version string for display
func GetShortVersion() string {
	if GitCommit != "unknown" && len(GitCommit) >= 7 {
		return fmt.Sprintf("%s (%s)", Version, GitCommit[:7])
	}
	return Version
}

// GetLongVersion returns detailed version information for --version output
func GetLongVersion() string {
	var output string
	output += fmt.Sprintf("%s version %s\n", Component, GetShortVersion())

	if BuildDate != "unknown" {
		output += fmt.Sprintf("Built: %s\n", BuildDate)
	}
	if GitCommit != "unknown" {
		output += fmt.Sprintf("Commit: %s\n", GitCommit)
	}

	output += fmt.Sprintf("Go: %s\n", runtime.Version())
	output += fmt.Sprintf("Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	return output
}
