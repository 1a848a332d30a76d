package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/blang/semver"
	"github.com/spf13/cobra"
)

var (
	appVersion = "dev"
	buildTime  = "unknown"
)

// SetVersion sets the build information reported by the version command
func SetVersion(version, built string) {
	appVersion = version
	buildTime = built
	rootCmd.Version = version
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("movieflix %s\n", appVersion)
		fmt.Printf("  built:   %s\n", buildTime)
		fmt.Printf("  go:      %s\n", runtime.Version())
		fmt.Printf("  os/arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// releaseVersion parses the build version. Development builds have none.
func releaseVersion(version string) (semver.Version, bool) {
	v, err := semver.ParseTolerant(strings.TrimSpace(version))
	if err != nil {
		return semver.Version{}, false
	}
	return v, true
}
