package commands

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/memento-ai/memento/cmd/memento-worker/ui"
	"github.com/memento-ai/memento/internal/outbox"
	"github.com/memento-ai/memento/internal/storage"
)

var reingestProject string

var reingestCmd = &cobra.Command{
	Use:   "reingest",
	Short: "Schedule re-chunking and re-embedding of every item's latest version",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, db, err := setup()
		if err != nil {
			return err
		}
		defer db.Close()
		ctx := cmd.Context()

		projectID, err := uuid.Parse(reingestProject)
		if err != nil {
			return fmt.Errorf("invalid --project: %w", err)
		}

		spin := ui.NewSpinner("scheduling reingest")
		spin.Start()

		repos := storage.NewRepositories(db)
		versions, err := repos.Versions.ListLatestByProject(ctx, projectID)
		if err != nil {
			spin.Stop()
			return err
		}
		for _, v := range versions {
			err := outbox.Enqueue(ctx, db, projectID, storage.EventIngestVersion,
				storage.IngestVersionPayload{VersionID: v.ID})
			if err == nil {
				err = outbox.Enqueue(ctx, db, projectID, storage.EventEmbedVersion,
					storage.EmbedVersionPayload{VersionID: v.ID})
			}
			if err != nil {
				spin.Stop()
				return err
			}
		}
		spin.Stop()

		ui.Success("%d versions scheduled; run the worker to process them", len(versions))
		return nil
	},
}

func init() {
	reingestCmd.Flags().StringVar(&reingestProject, "project", "", "project id (required)")
	_ = reingestCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(reingestCmd)
}
