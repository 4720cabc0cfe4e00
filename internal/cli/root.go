// Package cli wires the tally binary: configuration, backends and the
// servers, behind cobra subcommands.
package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tally",
	Short: "Variable dependency graph with an incremental index cache",
	Long: `Tally evaluates user-defined variables over logged records.

Results are cached per time scope and patched incrementally as records are
created, updated and deleted. Configuration is read from TALLY_* environment
variables.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(reindexCmd)
}
