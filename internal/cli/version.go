package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Set via -ldflags at build time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), VersionString())
	},
}

// VersionString returns the formatted build information.
func VersionString() string {
	return fmt.Sprintf("tally %s (commit: %s, built: %s)", Version, Commit, BuildDate)
}
