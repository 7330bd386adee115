package engine

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/memento-ai/memento/internal/embedding"
	"github.com/memento-ai/memento/internal/outbox"
	"github.com/memento-ai/memento/internal/storage"
)

// AdminReindex ensures the ANN index for a profile and schedules a full
// re-embed of the project's chunks. profileID uuid.Nil means the active
// profile.
func (e *Engine) AdminReindex(ctx context.Context, projectID, profileID uuid.UUID) (*storage.EmbeddingProfile, error) {
	release, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var profile *storage.EmbeddingProfile
	if profileID != uuid.Nil {
		profile, err = e.repos.Profiles.GetByID(ctx, projectID, profileID)
	} else {
		profile, err = e.repos.Profiles.GetActive(ctx, projectID)
	}
	if err != nil {
		return nil, translate(err, "profile not found")
	}

	if err := e.indexes.Ensure(ctx, profile); err != nil {
		return nil, translate(err, "ensure vector index")
	}
	err = outbox.Enqueue(ctx, e.db, projectID, storage.EventReindexProfile,
		storage.ReindexProfilePayload{EmbeddingProfileID: profile.ID})
	if err != nil {
		return nil, translate(err, "schedule reindex")
	}
	return profile, nil
}

// AdminReingest schedules re-chunking and re-embedding of every item's
// latest version. Returns the number of versions scheduled.
func (e *Engine) AdminReingest(ctx context.Context, projectID uuid.UUID) (int, error) {
	release, err := e.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	versions, err := e.repos.Versions.ListLatestByProject(ctx, projectID)
	if err != nil {
		return 0, translate(err, "list latest versions")
	}
	for _, v := range versions {
		err := outbox.Enqueue(ctx, e.db, projectID, storage.EventIngestVersion,
			storage.IngestVersionPayload{VersionID: v.ID})
		if err != nil {
			return 0, translate(err, "schedule ingest")
		}
		err = outbox.Enqueue(ctx, e.db, projectID, storage.EventEmbedVersion,
			storage.EmbedVersionPayload{VersionID: v.ID})
		if err != nil {
			return 0, translate(err, "schedule embed")
		}
	}
	return len(versions), nil
}

// HealthStatus reports the engine's dependencies.
type HealthStatus struct {
	Database   string `json:"database"`
	Embedder   string `json:"embedder"`
	OutboxLag  int    `json:"outbox_pending"`
	DeadLetter int    `json:"outbox_dead_letter"`
	Healthy    bool   `json:"healthy"`
}

// Health checks the database, the active embedder (when projectID is set),
// and the outbox depth.
func (e *Engine) Health(ctx context.Context, projectID uuid.UUID) *HealthStatus {
	status := &HealthStatus{Database: "ok", Embedder: "not_configured", Healthy: true}

	if err := e.db.PingContext(ctx); err != nil {
		status.Database = err.Error()
		status.Healthy = false
		return status
	}

	if pending, err := e.outbox.PendingCount(ctx); err == nil {
		status.OutboxLag = pending
	}
	if dead, err := e.outbox.DeadLetterCount(ctx); err == nil {
		status.DeadLetter = dead
	}

	if projectID != uuid.Nil {
		status.Embedder = e.embedderHealth(ctx, projectID)
	}
	return status
}

func (e *Engine) embedderHealth(ctx context.Context, projectID uuid.UUID) string {
	profile, err := e.repos.Profiles.GetActive(ctx, projectID)
	if errors.Is(err, storage.ErrNotFound) {
		return "no_active_profile"
	}
	if err != nil {
		return err.Error()
	}
	embedder, err := e.embedders(profile, e.cfg.Embedder)
	if errors.Is(err, embedding.ErrNotConfigured) {
		return "not_configured"
	}
	if err != nil {
		return err.Error()
	}
	if err := embedder.Health(ctx); err != nil {
		return err.Error()
	}
	return "ok"
}
