package commands

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/memento-ai/memento/cmd/memento-worker/ui"
	"github.com/memento-ai/memento/internal/index"
	"github.com/memento-ai/memento/internal/jobs"
	"github.com/memento-ai/memento/internal/storage"
)

var (
	reindexProject string
	reindexProfile string
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Re-embed every chunk of a project under a profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, db, err := setup()
		if err != nil {
			return err
		}
		defer db.Close()
		ctx := cmd.Context()

		projectID, err := uuid.Parse(reindexProject)
		if err != nil {
			return fmt.Errorf("invalid --project: %w", err)
		}

		repos := storage.NewRepositories(db)
		var profile *storage.EmbeddingProfile
		if reindexProfile != "" {
			profileID, err := uuid.Parse(reindexProfile)
			if err != nil {
				return fmt.Errorf("invalid --profile: %w", err)
			}
			profile, err = repos.Profiles.GetByID(ctx, projectID, profileID)
			if err != nil {
				return err
			}
		} else {
			profile, err = repos.Profiles.GetActive(ctx, projectID)
			if err != nil {
				return fmt.Errorf("no active profile: %w", err)
			}
		}

		manager := index.NewManager(db, logger, cfg.Search.SkipIndexBuild)
		if err := manager.Ensure(ctx, profile); err != nil {
			return err
		}

		var bar *ui.ProgressBar
		barDone := 0
		job := jobs.NewReindex(db, logger, cfg.Embedder, nil)
		job.OnPage = func(done, total int) {
			if bar == nil {
				bar = ui.NewProgressBar(int64(total), "reindexing")
			}
			bar.Add(done - barDone)
			barDone = done
		}

		payload, _ := json.Marshal(storage.ReindexProfilePayload{EmbeddingProfileID: profile.ID})
		err = job.Handle(ctx, &storage.OutboxEvent{ProjectID: projectID, Payload: payload})
		if bar != nil {
			bar.Finish()
		}
		if err != nil {
			ui.Error("reindex failed: %v", err)
			return err
		}
		ui.Success("profile %s reindexed", profile.Name)
		return nil
	},
}

func init() {
	reindexCmd.Flags().StringVar(&reindexProject, "project", "", "project id (required)")
	reindexCmd.Flags().StringVar(&reindexProfile, "profile", "", "embedding profile id (default: active)")
	_ = reindexCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(reindexCmd)
}
