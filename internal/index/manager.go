// Package index manages the per-profile ANN indexes over chunk embeddings.
package index

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/memento-ai/memento/internal/observability"
	"github.com/memento-ai/memento/internal/storage"
)

// Manager creates and refreshes HNSW indexes, one per embedding profile.
type Manager struct {
	db   *sql.DB
	log  *observability.Logger
	skip bool
}

// NewManager creates an index manager. skip disables all DDL, for tests.
func NewManager(db *sql.DB, log *observability.Logger, skip bool) *Manager {
	return &Manager{db: db, log: log, skip: skip}
}

// IndexName derives the deterministic index name for a profile.
func IndexName(profile *storage.EmbeddingProfile) string {
	sum := sha1.Sum([]byte(profile.ID.String()))
	return "chunk_embeddings_hnsw_" + hex.EncodeToString(sum[:])[:10]
}

// Opclass returns the pgvector operator class for a distance metric.
func Opclass(distance storage.Distance) (string, error) {
	switch distance {
	case storage.DistanceCosine:
		return "vector_cosine_ops", nil
	case storage.DistanceL2:
		return "vector_l2_ops", nil
	case storage.DistanceIP:
		return "vector_ip_ops", nil
	default:
		return "", fmt.Errorf("unknown distance metric %q", distance)
	}
}

// definition builds the CREATE INDEX statement for a profile.
func definition(profile *storage.EmbeddingProfile, concurrently bool) (string, error) {
	opclass, err := Opclass(profile.Distance)
	if err != nil {
		return "", err
	}

	conc := ""
	if concurrently {
		conc = "CONCURRENTLY "
	}

	params := ""
	pc, err := profile.Config()
	if err != nil {
		return "", fmt.Errorf("parse provider_config: %w", err)
	}
	var opts []string
	if pc.HNSWM > 0 {
		opts = append(opts, fmt.Sprintf("m = %d", pc.HNSWM))
	}
	if pc.HNSWEfConstruction > 0 {
		opts = append(opts, fmt.Sprintf("ef_construction = %d", pc.HNSWEfConstruction))
	}
	if len(opts) > 0 {
		params = " WITH (" + strings.Join(opts, ", ") + ")"
	}

	return fmt.Sprintf(
		`CREATE INDEX %s%s ON chunk_embeddings USING hnsw ((embedding_vector::vector(%d)) %s)%s WHERE embedding_profile_id = '%s'`,
		conc, IndexName(profile), profile.Dims, opclass, params, profile.ID,
	), nil
}

// Ensure creates the profile's ANN index, dropping and recreating it when an
// existing index disagrees on dimensions, opclass, predicate, or declared
// HNSW parameters. DDL runs concurrently so writes keep flowing.
func (m *Manager) Ensure(ctx context.Context, profile *storage.EmbeddingProfile) error {
	if m.skip {
		m.log.Debug().Str("profile_id", profile.ID.String()).Msg("index build skipped")
		return nil
	}

	name := IndexName(profile)
	existing, err := m.currentDefinition(ctx, name)
	if err != nil {
		return err
	}

	want, err := definition(profile, true)
	if err != nil {
		return err
	}

	if existing != "" {
		if matchesProfile(existing, profile) {
			return nil
		}
		m.log.Warn().Str("index", name).Msg("index definition drifted, rebuilding")
		if _, err := m.db.ExecContext(ctx, "DROP INDEX CONCURRENTLY IF EXISTS "+name); err != nil {
			return fmt.Errorf("drop index %s: %w", name, err)
		}
	}

	if _, err := m.db.ExecContext(ctx, want); err != nil {
		return fmt.Errorf("create index %s: %w", name, err)
	}
	m.log.Info().Str("index", name).Int("dims", profile.Dims).Msg("ann index ready")
	return nil
}

// Drop removes the profile's index if present.
func (m *Manager) Drop(ctx context.Context, profile *storage.EmbeddingProfile) error {
	if m.skip {
		return nil
	}
	_, err := m.db.ExecContext(ctx,
		"DROP INDEX CONCURRENTLY IF EXISTS "+IndexName(profile))
	return err
}

func (m *Manager) currentDefinition(ctx context.Context, name string) (string, error) {
	var def string
	err := m.db.QueryRowContext(ctx,
		`SELECT indexdef FROM pg_indexes WHERE indexname = $1`, name).Scan(&def)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return def, err
}

// matchesProfile checks the recorded indexdef against the profile's declared
// dimensions, opclass, predicate, and HNSW parameters.
func matchesProfile(indexdef string, profile *storage.EmbeddingProfile) bool {
	opclass, err := Opclass(profile.Distance)
	if err != nil {
		return false
	}

	checks := []string{
		fmt.Sprintf("vector(%d)", profile.Dims),
		opclass,
		strings.ToLower(profile.ID.String()),
	}

	pc, err := profile.Config()
	if err != nil {
		return false
	}
	if pc.HNSWM > 0 {
		checks = append(checks, fmt.Sprintf("m='%d'", pc.HNSWM))
	}
	if pc.HNSWEfConstruction > 0 {
		checks = append(checks, fmt.Sprintf("ef_construction='%d'", pc.HNSWEfConstruction))
	}

	lower := strings.ToLower(indexdef)
	for _, c := range checks {
		if !strings.Contains(lower, strings.ToLower(c)) {
			return false
		}
	}
	return true
}
