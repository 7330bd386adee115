package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// chunkInsertBatchSize caps rows per INSERT statement during reingest.
const chunkInsertBatchSize = 200

const chunkColumns = `id, project_id, version_id, chunk_index, chunk_text,
	heading_path, section_anchor, start_char, end_char, created_at`

// ChunkRepository handles memory chunk operations.
type ChunkRepository struct {
	db DB
}

// NewChunkRepository creates a new chunk repository.
func NewChunkRepository(db DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// DeleteByVersion removes all chunks of a version.
func (r *ChunkRepository) DeleteByVersion(ctx context.Context, projectID, versionID uuid.UUID) error {
	query := `DELETE FROM memory_chunks WHERE version_id = $1 AND project_id = $2`
	_, err := r.db.ExecContext(ctx, query, versionID, projectID)
	return err
}

// BulkInsert inserts chunks in batches, computing the English full-text
// vector for each row. Run inside the same transaction as DeleteByVersion
// so the rewrite is atomic.
func (r *ChunkRepository) BulkInsert(ctx context.Context, chunks []*MemoryChunk) error {
	for start := 0; start < len(chunks); start += chunkInsertBatchSize {
		end := start + chunkInsertBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		if err := r.insertBatch(ctx, chunks[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (r *ChunkRepository) insertBatch(ctx context.Context, batch []*MemoryChunk) error {
	if len(batch) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO memory_chunks
		(id, project_id, version_id, chunk_index, chunk_text, heading_path,
		 section_anchor, start_char, end_char, tsv, created_at) VALUES `)

	args := make([]interface{}, 0, len(batch)*10)
	now := time.Now()
	for i, c := range batch {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		if c.HeadingPath == nil {
			c.HeadingPath = []string{}
		}
		c.CreatedAt = now

		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 10
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, to_tsvector('english', $%d), now())",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10)
		args = append(args,
			c.ID, c.ProjectID, c.VersionID, c.ChunkIndex, c.ChunkText,
			c.HeadingPath, c.SectionAnchor, c.StartChar, c.EndChar, c.ChunkText,
		)
	}

	_, err := r.db.ExecContext(ctx, sb.String(), args...)
	return translateError(err)
}

// ListByVersion lists chunks of a version ordered by chunk index.
func (r *ChunkRepository) ListByVersion(ctx context.Context, projectID, versionID uuid.UUID) ([]*MemoryChunk, error) {
	query := `
		SELECT ` + chunkColumns + ` FROM memory_chunks
		WHERE version_id = $1 AND project_id = $2
		ORDER BY chunk_index
	`
	return r.list(ctx, query, versionID, projectID)
}

// ListPageByProject returns one keyset page of the project's chunks ordered
// by ascending id. Pass uuid.Nil to start from the beginning.
func (r *ChunkRepository) ListPageByProject(ctx context.Context, projectID, afterID uuid.UUID, limit int) ([]*MemoryChunk, error) {
	query := `
		SELECT ` + chunkColumns + ` FROM memory_chunks
		WHERE project_id = $1 AND ($2::uuid IS NULL OR id > $2)
		ORDER BY id LIMIT $3
	`
	var after interface{}
	if afterID != uuid.Nil {
		after = afterID
	}
	return r.list(ctx, query, projectID, after, limit)
}

// GetByAnchor retrieves the first chunk of a version carrying the section
// anchor.
func (r *ChunkRepository) GetByAnchor(ctx context.Context, projectID, versionID uuid.UUID, anchor string) (*MemoryChunk, error) {
	query := `
		SELECT ` + chunkColumns + ` FROM memory_chunks
		WHERE version_id = $1 AND project_id = $2 AND section_anchor = $3
		ORDER BY chunk_index LIMIT 1
	`
	c := &MemoryChunk{}
	err := r.db.QueryRowContext(ctx, query, versionID, projectID, anchor).Scan(
		&c.ID, &c.ProjectID, &c.VersionID, &c.ChunkIndex, &c.ChunkText,
		&c.HeadingPath, &c.SectionAnchor, &c.StartChar, &c.EndChar, &c.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// CountByProject counts chunks of a project.
func (r *ChunkRepository) CountByProject(ctx context.Context, projectID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM memory_chunks WHERE project_id = $1`, projectID).Scan(&n)
	return n, err
}

func (r *ChunkRepository) list(ctx context.Context, query string, args ...interface{}) ([]*MemoryChunk, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*MemoryChunk
	for rows.Next() {
		c := &MemoryChunk{}
		if err := rows.Scan(
			&c.ID, &c.ProjectID, &c.VersionID, &c.ChunkIndex, &c.ChunkText,
			&c.HeadingPath, &c.SectionAnchor, &c.StartChar, &c.EndChar, &c.CreatedAt,
		); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// EmbeddingRepository handles chunk embedding rows.
type EmbeddingRepository struct {
	db DB
}

// NewEmbeddingRepository creates a new embedding repository.
func NewEmbeddingRepository(db DB) *EmbeddingRepository {
	return &EmbeddingRepository{db: db}
}

// UpsertBatch inserts or replaces embeddings keyed by
// (chunk_id, embedding_profile_id).
func (r *EmbeddingRepository) UpsertBatch(ctx context.Context, embeddings []*ChunkEmbedding) error {
	if len(embeddings) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO chunk_embeddings
		(chunk_id, embedding_profile_id, project_id, embedding_vector, created_at) VALUES `)

	args := make([]interface{}, 0, len(embeddings)*4)
	for i, e := range embeddings {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 4
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, now())", base+1, base+2, base+3, base+4)
		args = append(args, e.ChunkID, e.EmbeddingProfileID, e.ProjectID, e.Vector)
	}
	sb.WriteString(` ON CONFLICT (chunk_id, embedding_profile_id)
		DO UPDATE SET embedding_vector = EXCLUDED.embedding_vector, created_at = now()`)

	_, err := r.db.ExecContext(ctx, sb.String(), args...)
	return err
}

// DeleteByVersionAndProfile removes stale embeddings of a version's chunks
// under one profile.
func (r *EmbeddingRepository) DeleteByVersionAndProfile(ctx context.Context, projectID, versionID, profileID uuid.UUID) error {
	query := `
		DELETE FROM chunk_embeddings
		WHERE embedding_profile_id = $1 AND project_id = $2
			AND chunk_id IN (SELECT id FROM memory_chunks WHERE version_id = $3)
	`
	_, err := r.db.ExecContext(ctx, query, profileID, projectID, versionID)
	return err
}

// DeleteByProfile removes every embedding under one profile.
func (r *EmbeddingRepository) DeleteByProfile(ctx context.Context, projectID, profileID uuid.UUID) error {
	query := `DELETE FROM chunk_embeddings WHERE embedding_profile_id = $1 AND project_id = $2`
	_, err := r.db.ExecContext(ctx, query, profileID, projectID)
	return err
}

// CountByProfile counts embeddings under one profile.
func (r *EmbeddingRepository) CountByProfile(ctx context.Context, projectID, profileID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM chunk_embeddings WHERE embedding_profile_id = $1 AND project_id = $2`,
		profileID, projectID).Scan(&n)
	return n, err
}

const profileColumns = `id, project_id, name, provider, model, dims, distance,
	is_active, provider_config, created_at, updated_at`

// ProfileRepository handles embedding profiles.
type ProfileRepository struct {
	db DB
}

// NewProfileRepository creates a new profile repository.
func NewProfileRepository(db DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Create creates a new profile. Returns ErrConflict when the name is taken.
func (r *ProfileRepository) Create(ctx context.Context, p *EmbeddingProfile) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Distance == "" {
		p.Distance = DistanceCosine
	}
	if len(p.ProviderConfig) == 0 {
		p.ProviderConfig = []byte(`{}`)
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt

	query := `
		INSERT INTO embedding_profiles (` + profileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.ProjectID, p.Name, p.Provider, p.Model, p.Dims, p.Distance,
		p.IsActive, p.ProviderConfig, p.CreatedAt, p.UpdatedAt,
	)
	return translateError(err)
}

// GetByID retrieves a profile by ID with project scoping.
func (r *ProfileRepository) GetByID(ctx context.Context, projectID, profileID uuid.UUID) (*EmbeddingProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM embedding_profiles WHERE id = $1 AND project_id = $2`
	return scanProfile(r.db.QueryRowContext(ctx, query, profileID, projectID))
}

// GetByName retrieves a profile by name.
func (r *ProfileRepository) GetByName(ctx context.Context, projectID uuid.UUID, name string) (*EmbeddingProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM embedding_profiles WHERE project_id = $1 AND name = $2`
	return scanProfile(r.db.QueryRowContext(ctx, query, projectID, name))
}

// GetActive retrieves the project's active profile.
func (r *ProfileRepository) GetActive(ctx context.Context, projectID uuid.UUID) (*EmbeddingProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM embedding_profiles WHERE project_id = $1 AND is_active`
	return scanProfile(r.db.QueryRowContext(ctx, query, projectID))
}

// List lists all profiles of a project.
func (r *ProfileRepository) List(ctx context.Context, projectID uuid.UUID) ([]*EmbeddingProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM embedding_profiles WHERE project_id = $1 ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*EmbeddingProfile
	for rows.Next() {
		p := &EmbeddingProfile{}
		if err := rows.Scan(
			&p.ID, &p.ProjectID, &p.Name, &p.Provider, &p.Model, &p.Dims,
			&p.Distance, &p.IsActive, &p.ProviderConfig, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// Activate makes profileID the single active profile of the project.
// Run inside a transaction.
func (r *ProfileRepository) Activate(ctx context.Context, projectID, profileID uuid.UUID) error {
	deactivate := `UPDATE embedding_profiles SET is_active = false, updated_at = now()
		WHERE project_id = $1 AND is_active AND id <> $2`
	if _, err := r.db.ExecContext(ctx, deactivate, projectID, profileID); err != nil {
		return err
	}

	activate := `UPDATE embedding_profiles SET is_active = true, updated_at = now()
		WHERE id = $1 AND project_id = $2`
	res, err := r.db.ExecContext(ctx, activate, profileID, projectID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// Delete removes a profile and (by cascade) its embeddings.
func (r *ProfileRepository) Delete(ctx context.Context, projectID, profileID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM embedding_profiles WHERE id = $1 AND project_id = $2`, profileID, projectID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func scanProfile(row *sql.Row) (*EmbeddingProfile, error) {
	p := &EmbeddingProfile{}
	err := row.Scan(
		&p.ID, &p.ProjectID, &p.Name, &p.Provider, &p.Model, &p.Dims,
		&p.Distance, &p.IsActive, &p.ProviderConfig, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}
