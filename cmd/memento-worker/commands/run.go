package commands

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/memento-ai/memento/internal/chunker"
	"github.com/memento-ai/memento/internal/jobs"
	"github.com/memento-ai/memento/internal/outbox"
	"github.com/memento-ai/memento/internal/storage"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the outbox worker loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, db, err := setup()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := storage.EnsureSchema(cmd.Context(), db); err != nil {
			return err
		}

		worker := outbox.NewWorker(outbox.NewStore(db), logger, cfg.Outbox)
		worker.Register(storage.EventIngestVersion,
			jobs.NewIngest(db, logger, chunker.DefaultConfig()).Handle)
		worker.Register(storage.EventEmbedVersion,
			jobs.NewEmbed(db, logger, cfg.Embedder, nil).Handle)
		worker.Register(storage.EventReindexProfile,
			jobs.NewReindex(db, logger, cfg.Embedder, nil).Handle)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		err = worker.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
