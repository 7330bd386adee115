// Package jobs contains the outbox event handlers: version ingestion,
// embedding fan-out, and profile reindexing.
package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/memento-ai/memento/internal/chunker"
	"github.com/memento-ai/memento/internal/observability"
	"github.com/memento-ai/memento/internal/storage"
)

// Ingest rebuilds a version's chunks and full-text vectors.
type Ingest struct {
	db       *sql.DB
	log      *observability.Logger
	chunkCfg chunker.Config
}

// NewIngest creates the INGEST_VERSION handler.
func NewIngest(db *sql.DB, log *observability.Logger, chunkCfg chunker.Config) *Ingest {
	if chunkCfg.TargetTokens <= 0 {
		chunkCfg = chunker.DefaultConfig()
	}
	return &Ingest{db: db, log: log.WithOperation("ingest"), chunkCfg: chunkCfg}
}

// Handle re-chunks the version and atomically rewrites its chunk rows.
func (j *Ingest) Handle(ctx context.Context, event *storage.OutboxEvent) error {
	var payload storage.IngestVersionPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	repos := storage.NewRepositories(j.db)
	version, err := repos.Versions.GetByID(ctx, event.ProjectID, payload.VersionID)
	if err != nil {
		return fmt.Errorf("load version %s: %w", payload.VersionID, err)
	}
	item, err := repos.Items.GetByID(ctx, event.ProjectID, version.ItemID)
	if err != nil {
		return fmt.Errorf("load item %s: %w", version.ItemID, err)
	}

	content := NormalizeContent(version)

	cfg := j.chunkCfg
	if item.IsCanonical() && item.DocClass.Valid && storage.CanonicalDocClass(item.DocClass.String) {
		cfg.DisableOverlap = true
	}
	chunks := chunker.Split(content, cfg)

	rows := make([]*storage.MemoryChunk, len(chunks))
	for i, c := range chunks {
		rows[i] = &storage.MemoryChunk{
			ProjectID:     event.ProjectID,
			VersionID:     version.ID,
			ChunkIndex:    c.Index,
			ChunkText:     c.Text,
			HeadingPath:   c.HeadingPath,
			SectionAnchor: sql.NullString{String: c.SectionAnchor, Valid: c.SectionAnchor != ""},
			StartChar:     c.StartChar,
			EndChar:       c.EndChar,
		}
	}

	err = storage.WithTx(ctx, j.db, func(tx *sql.Tx) error {
		txRepos := storage.NewRepositories(tx)
		if err := txRepos.Chunks.DeleteByVersion(ctx, event.ProjectID, version.ID); err != nil {
			return fmt.Errorf("delete old chunks: %w", err)
		}
		if err := txRepos.Chunks.BulkInsert(ctx, rows); err != nil {
			return fmt.Errorf("insert chunks: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	j.log.Info().
		Str("version_id", version.ID.String()).
		Int("chunks", len(rows)).
		Msg("version ingested")
	return nil
}

// NormalizeContent returns the text to chunk: the version's content text, or
// pretty-printed JSON when the format is json and the text is empty.
func NormalizeContent(version *storage.MemoryVersion) string {
	if version.ContentFormat == storage.FormatJSON && version.ContentText == "" &&
		len(version.ContentJSON) > 0 {
		var buf interface{}
		if err := json.Unmarshal(version.ContentJSON, &buf); err == nil {
			if pretty, err := json.MarshalIndent(buf, "", "  "); err == nil {
				return string(pretty)
			}
		}
		return string(version.ContentJSON)
	}
	return version.ContentText
}
