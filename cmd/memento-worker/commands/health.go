package commands

import (
	"github.com/spf13/cobra"

	"github.com/memento-ai/memento/cmd/memento-worker/ui"
	"github.com/memento-ai/memento/internal/outbox"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check database connectivity and outbox depth",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, db, err := setup()
		if err != nil {
			return err
		}
		defer db.Close()
		ctx := cmd.Context()

		if err := db.PingContext(ctx); err != nil {
			ui.Error("database: %v", err)
			return err
		}
		ui.Success("database: ok")

		store := outbox.NewStore(db)
		pending, err := store.PendingCount(ctx)
		if err != nil {
			ui.Error("outbox: %v", err)
			return err
		}
		dead, err := store.DeadLetterCount(ctx)
		if err != nil {
			ui.Error("outbox: %v", err)
			return err
		}

		ui.Message("outbox pending: %d", pending)
		if dead > 0 {
			ui.Warning("outbox dead-letter: %d", dead)
		} else {
			ui.Success("outbox dead-letter: 0")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
