package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/memento-ai/memento/internal/config"
	"github.com/memento-ai/memento/internal/embedding"
	"github.com/memento-ai/memento/internal/observability"
	"github.com/memento-ai/memento/internal/storage"
)

// reindexPageSize bounds memory during a full-project reindex.
const reindexPageSize = 500

// Reindex re-embeds every chunk of a project under one profile.
type Reindex struct {
	db          *sql.DB
	log         *observability.Logger
	cfg         config.EmbedderConfig
	newEmbedder EmbedderFactory

	// OnPage, when set, is called after each upserted page with running and
	// total chunk counts. Used by the CLI for progress display.
	OnPage func(done, total int)
}

// NewReindex creates the REINDEX_PROFILE handler.
func NewReindex(db *sql.DB, log *observability.Logger, cfg config.EmbedderConfig, factory EmbedderFactory) *Reindex {
	if factory == nil {
		factory = embedding.NewFromProfile
	}
	return &Reindex{db: db, log: log.WithOperation("reindex"), cfg: cfg, newEmbedder: factory}
}

// Handle walks the project's chunks in keyset pages and upserts fresh
// embeddings page by page, never loading the whole project into memory.
func (j *Reindex) Handle(ctx context.Context, event *storage.OutboxEvent) error {
	var payload storage.ReindexProfilePayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	repos := storage.NewRepositories(j.db)
	profile, err := repos.Profiles.GetByID(ctx, event.ProjectID, payload.EmbeddingProfileID)
	if err != nil {
		return fmt.Errorf("load profile %s: %w", payload.EmbeddingProfileID, err)
	}

	embedder, err := j.newEmbedder(profile, j.cfg)
	if err != nil {
		return fmt.Errorf("build embedder: %w", err)
	}

	known := 0
	if j.OnPage != nil {
		if known, err = repos.Chunks.CountByProject(ctx, event.ProjectID); err != nil {
			return fmt.Errorf("count chunks: %w", err)
		}
	}

	after := uuid.Nil
	firstPage := true
	total := 0
	for {
		page, err := repos.Chunks.ListPageByProject(ctx, event.ProjectID, after, reindexPageSize)
		if err != nil {
			return fmt.Errorf("load chunk page: %w", err)
		}

		if firstPage && len(page) == 0 {
			// Nothing left to index; clear out whatever the profile held.
			return repos.Embeddings.DeleteByProfile(ctx, event.ProjectID, profile.ID)
		}
		firstPage = false
		if len(page) == 0 {
			break
		}

		embeddings, err := EmbedChunkBatches(ctx, embedder, profile, page, j.cfg)
		if err != nil {
			return err
		}
		err = storage.WithTx(ctx, j.db, func(tx *sql.Tx) error {
			return storage.NewEmbeddingRepository(tx).UpsertBatch(ctx, embeddings)
		})
		if err != nil {
			return err
		}

		total += len(page)
		if j.OnPage != nil {
			j.OnPage(total, known)
		}
		after = page[len(page)-1].ID
		if len(page) < reindexPageSize {
			break
		}
	}

	j.log.Info().
		Str("profile", profile.Name).
		Int("chunks", total).
		Msg("profile reindexed")
	return nil
}
