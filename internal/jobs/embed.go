package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"golang.org/x/sync/errgroup"

	"github.com/memento-ai/memento/internal/config"
	"github.com/memento-ai/memento/internal/embedding"
	"github.com/memento-ai/memento/internal/observability"
	"github.com/memento-ai/memento/internal/storage"
)

// EmbedderFactory builds the embedder for a profile. Injected for tests.
type EmbedderFactory func(profile *storage.EmbeddingProfile, cfg config.EmbedderConfig) (embedding.Embedder, error)

// Embed computes chunk embeddings for a version under a profile.
type Embed struct {
	db          *sql.DB
	log         *observability.Logger
	cfg         config.EmbedderConfig
	newEmbedder EmbedderFactory
}

// NewEmbed creates the EMBED_VERSION handler.
func NewEmbed(db *sql.DB, log *observability.Logger, cfg config.EmbedderConfig, factory EmbedderFactory) *Embed {
	if factory == nil {
		factory = embedding.NewFromProfile
	}
	return &Embed{db: db, log: log.WithOperation("embed"), cfg: cfg, newEmbedder: factory}
}

// Handle embeds all chunks of the version. The contextual whole-document
// path is tried first for eligible canonical docs and falls through to batch
// mode unless strict.
func (j *Embed) Handle(ctx context.Context, event *storage.OutboxEvent) error {
	var payload storage.EmbedVersionPayload
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

	profile, err := j.resolveProfile(ctx, repos, event.ProjectID, payload.EmbeddingProfileID)
	if errors.Is(err, storage.ErrNotFound) {
		// No active profile means nothing to embed for this project yet.
		j.log.Debug().Str("version_id", version.ID.String()).Msg("no embedding profile, skipping")
		return nil
	}
	if err != nil {
		return err
	}

	chunks, err := repos.Chunks.ListByVersion(ctx, event.ProjectID, version.ID)
	if err != nil {
		return fmt.Errorf("load chunks: %w", err)
	}
	if len(chunks) == 0 {
		return repos.Embeddings.DeleteByVersionAndProfile(ctx, event.ProjectID, version.ID, profile.ID)
	}

	embedder, err := j.newEmbedder(profile, j.cfg)
	if err != nil {
		return fmt.Errorf("build embedder: %w", err)
	}

	if done, err := j.tryContextual(ctx, embedder, profile, item, chunks); done || err != nil {
		return err
	}

	embeddings, err := EmbedChunkBatches(ctx, embedder, profile, chunks, j.cfg)
	if err != nil {
		return err
	}
	if err := j.upsert(ctx, embeddings); err != nil {
		return err
	}

	j.log.Info().
		Str("version_id", version.ID.String()).
		Str("profile", profile.Name).
		Int("chunks", len(chunks)).
		Msg("version embedded")
	return nil
}

func (j *Embed) resolveProfile(ctx context.Context, repos *storage.Repositories, projectID uuid.UUID, explicit *uuid.UUID) (*storage.EmbeddingProfile, error) {
	if explicit != nil {
		return repos.Profiles.GetByID(ctx, projectID, *explicit)
	}
	return repos.Profiles.GetActive(ctx, projectID)
}

// tryContextual runs the whole-document path when the provider, doc class,
// and size guards all allow it. Returns done=true when embeddings were
// written.
func (j *Embed) tryContextual(ctx context.Context, embedder embedding.Embedder, profile *storage.EmbeddingProfile, item *storage.MemoryItem, chunks []*storage.MemoryChunk) (bool, error) {
	ce, ok := embedding.SupportsContextual(embedder)
	if !ok {
		return false, nil
	}
	if !item.IsCanonical() || !item.DocClass.Valid || !storage.CanonicalDocClass(item.DocClass.String) {
		return false, nil
	}

	maxChars, maxChunks, strict := j.contextualGuards(profile)
	totalChars := 0
	for _, c := range chunks {
		totalChars += len(c.ChunkText)
	}
	if totalChars > maxChars || len(chunks) > maxChunks {
		j.log.Debug().
			Int("chars", totalChars).
			Int("chunks", len(chunks)).
			Msg("document too large for contextual embedding")
		return false, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.ChunkText
	}

	result, err := ce.EmbedDocumentChunks(ctx, texts)
	if err == nil {
		err = validateResult(result, profile, len(chunks))
	}
	if err != nil {
		if strict {
			return false, fmt.Errorf("contextual embedding failed: %w", err)
		}
		j.log.Warn().Err(err).Msg("contextual embedding failed, falling back to batch mode")
		return false, nil
	}

	embeddings := make([]*storage.ChunkEmbedding, len(chunks))
	for i, c := range chunks {
		embeddings[i] = &storage.ChunkEmbedding{
			ChunkID:            c.ID,
			EmbeddingProfileID: profile.ID,
			ProjectID:          c.ProjectID,
			Vector:             pgvector.NewVector(result.Vectors[i]),
		}
	}
	return true, j.upsert(ctx, embeddings)
}

func (j *Embed) contextualGuards(profile *storage.EmbeddingProfile) (maxChars, maxChunks int, strict bool) {
	maxChars = j.cfg.ContextualMaxChars
	maxChunks = j.cfg.ContextualMaxChunks
	strict = j.cfg.ContextualStrict

	if pc, err := profile.Config(); err == nil {
		if pc.ContextualMaxChars > 0 {
			maxChars = pc.ContextualMaxChars
		}
		if pc.ContextualMaxChunks > 0 {
			maxChunks = pc.ContextualMaxChunks
		}
		if pc.ContextualStrict {
			strict = true
		}
	}
	return maxChars, maxChunks, strict
}

func (j *Embed) upsert(ctx context.Context, embeddings []*storage.ChunkEmbedding) error {
	return storage.WithTx(ctx, j.db, func(tx *sql.Tx) error {
		return storage.NewEmbeddingRepository(tx).UpsertBatch(ctx, embeddings)
	})
}

// EmbedChunkBatches partitions chunks into batches and embeds them with
// bounded parallelism, reassembling results in chunk order.
func EmbedChunkBatches(ctx context.Context, embedder embedding.Embedder, profile *storage.EmbeddingProfile, chunks []*storage.MemoryChunk, cfg config.EmbedderConfig) ([]*storage.ChunkEmbedding, error) {
	batchSize := clamp(cfg.BatchSize, 1, 256, 32)
	maxConc := clamp(cfg.Concurrency, 1, 8, 2)

	type indexedBatch struct {
		start  int
		chunks []*storage.MemoryChunk
	}
	var batches []indexedBatch
	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batches = append(batches, indexedBatch{start: start, chunks: chunks[start:end]})
	}

	embeddings := make([]*storage.ChunkEmbedding, len(chunks))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConc)
	for _, batch := range batches {
		batch := batch
		g.Go(func() error {
			texts := make([]string, len(batch.chunks))
			for i, c := range batch.chunks {
				texts[i] = c.ChunkText
			}

			result, err := embedder.Embed(gctx, embedding.EmbedRequest{
				Texts:     texts,
				InputType: embedding.InputPassage,
			})
			if err != nil {
				return err
			}
			if err := validateResult(result, profile, len(batch.chunks)); err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			for i, c := range batch.chunks {
				embeddings[batch.start+i] = &storage.ChunkEmbedding{
					ChunkID:            c.ID,
					EmbeddingProfileID: profile.ID,
					ProjectID:          c.ProjectID,
					Vector:             pgvector.NewVector(result.Vectors[i]),
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return embeddings, nil
}

func validateResult(result *embedding.EmbedResult, profile *storage.EmbeddingProfile, want int) error {
	if len(result.Vectors) != want {
		return fmt.Errorf("embedding count mismatch (got %d want %d)", len(result.Vectors), want)
	}
	for i, v := range result.Vectors {
		if len(v) != profile.Dims {
			return fmt.Errorf("embedding %d has %d dims, profile %s expects %d",
				i, len(v), profile.Name, profile.Dims)
		}
	}
	return nil
}

func clamp(v, lo, hi, fallback int) int {
	if v == 0 {
		v = fallback
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
