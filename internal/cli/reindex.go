package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rafaeljc/tally/internal/syncer"
)

var reindexPublish bool

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Drop every stored index so the next evaluations recompute",
	Long: `Drop every stored index so the next evaluations recompute from the record store.

With --publish the command also emits a RESYNC event on the configured syncer
source, so running servers clear their in-process L1 cache as well.`,
	Args: cobra.NoArgs,
	RunE: runReindex,
}

func init() {
	reindexCmd.Flags().BoolVar(&reindexPublish, "publish", false, "publish a RESYNC event to running servers")
}

func runReindex(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	if err := a.open(ctx); err != nil {
		return err
	}

	if err := a.graph.DeleteIndices(ctx); err != nil {
		return err
	}

	if reindexPublish {
		if !a.cfg.Syncer.Enabled {
			return fmt.Errorf("--publish needs the syncer to be enabled (TALLY_SYNCER_ENABLED)")
		}
		publisher, closePublisher := newSyncerPublisher(a)
		defer closePublisher()

		if err := publisher.Publish(ctx, syncer.NewResyncEvent()); err != nil {
			return err
		}
		a.logger.Info("resync event published", slog.String("source", a.cfg.Syncer.Source))
	}

	fmt.Fprintln(cmd.OutOrStdout(), "indices dropped")
	return nil
}
