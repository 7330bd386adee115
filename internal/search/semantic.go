package search

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/memento-ai/memento/internal/config"
	"github.com/memento-ai/memento/internal/embedding"
	"github.com/memento-ai/memento/internal/observability"
	"github.com/memento-ai/memento/internal/storage"
)

// Default hnsw.ef_search resolution bounds, overridable per profile.
const (
	defaultEfSearchMin    = 40
	defaultEfSearchFactor = 2.0
	defaultEfSearchMax    = 400
)

// EmbedderFactory builds the embedder for a profile. Injected for tests.
type EmbedderFactory func(profile *storage.EmbeddingProfile, cfg config.EmbedderConfig) (embedding.Embedder, error)

// Semantic runs ANN search over chunk embeddings under the project's active
// profile.
type Semantic struct {
	db          *sql.DB
	log         *observability.Logger
	cfg         config.EmbedderConfig
	newEmbedder EmbedderFactory
}

// NewSemantic creates the semantic engine.
func NewSemantic(db *sql.DB, log *observability.Logger, cfg config.EmbedderConfig, factory EmbedderFactory) *Semantic {
	if factory == nil {
		factory = embedding.NewFromProfile
	}
	return &Semantic{db: db, log: log, cfg: cfg, newEmbedder: factory}
}

// Search embeds the query and returns the nearest chunks. Missing profile or
// provider configuration degrades to an empty result with a reason rather
// than an error so hybrid search can proceed on the lexical side alone.
func (s *Semantic) Search(ctx context.Context, projectID uuid.UUID, query string, filters Filters, opts Options) (*SemanticResult, error) {
	opts = opts.withDefaults()

	repos := storage.NewRepositories(s.db)
	profile, err := repos.Profiles.GetActive(ctx, projectID)
	if errors.Is(err, storage.ErrNotFound) {
		return &SemanticResult{Reason: ReasonNoActiveProfile}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load active profile: %w", err)
	}

	embedder, err := s.newEmbedder(profile, s.cfg)
	if errors.Is(err, embedding.ErrNotConfigured) {
		return &SemanticResult{Reason: ReasonEmbedderNotConfigured}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("build embedder: %w", err)
	}

	result, err := embedder.Embed(ctx, embedding.EmbedRequest{
		Texts:     []string{query},
		InputType: embedding.InputQuery,
	})
	if errors.Is(err, embedding.ErrNotConfigured) {
		return &SemanticResult{Reason: ReasonEmbedderNotConfigured}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(result.Vectors) == 0 || len(result.Vectors[0]) == 0 {
		return &SemanticResult{Reason: ReasonEmptyEmbedding}, nil
	}
	vec := result.Vectors[0]
	if len(vec) != profile.Dims {
		return nil, fmt.Errorf("query embedding has %d dims, profile %s expects %d",
			len(vec), profile.Name, profile.Dims)
	}

	matches, err := s.query(ctx, projectID, profile, vec, filters, opts)
	if err != nil {
		return nil, err
	}
	return &SemanticResult{Matches: matches}, nil
}

// query runs the candidate fetch and join inside one transaction so the
// session-local ef_search setting covers the ANN scan.
func (s *Semantic) query(ctx context.Context, projectID uuid.UUID, profile *storage.EmbeddingProfile, vec []float32, filters Filters, opts Options) ([]*Match, error) {
	var matches []*Match
	err := storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		efSearch := resolveEfSearch(profile, opts.TopK)
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", efSearch)); err != nil {
			return fmt.Errorf("set ef_search: %w", err)
		}

		multiplier := 4
		if !filters.Empty() {
			multiplier = 8
		}

		q := newQueryBuilder()
		vecArg := q.arg(pgvector.NewVector(vec))
		profileArg := q.arg(profile.ID)
		projectArg := q.arg(projectID)

		where := []string{"i.status = 'active'", latestVersionClause}
		where = append(where, filterClauses(&q, filters)...)

		sqlText := fmt.Sprintf(`
			WITH cand AS (
				SELECT e.chunk_id,
				       e.embedding_vector::vector(%d) %s %s AS distance
				FROM chunk_embeddings e
				WHERE e.embedding_profile_id = %s AND e.project_id = %s
				ORDER BY distance ASC
				LIMIT %d
			)
			SELECT c.id, i.id, c.version_id, i.title, i.kind,
			       COALESCE(i.canonical_key, ''), COALESCE(i.doc_class, ''), i.pinned,
			       c.heading_path, COALESCE(c.section_anchor, ''),
			       LEFT(c.chunk_text, %s),
			       cand.distance
			FROM cand
			JOIN memory_chunks c ON c.id = cand.chunk_id
			JOIN memory_versions v ON v.id = c.version_id
			JOIN memory_items i ON i.id = v.item_id
			WHERE %s
			ORDER BY cand.distance ASC, c.id ASC
			LIMIT %d`,
			profile.Dims, distanceOperator(profile.Distance), vecArg,
			profileArg, projectArg, opts.TopK*multiplier,
			q.arg(opts.MaxChunkChars),
			strings.Join(where, " AND "), opts.TopK)

		rows, err := tx.QueryContext(ctx, sqlText, q.args...)
		if err != nil {
			return fmt.Errorf("semantic search: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			m := &Match{}
			var headingPath pq.StringArray
			err := rows.Scan(&m.ChunkID, &m.ItemID, &m.VersionID, &m.Title, &m.Kind,
				&m.CanonicalKey, &m.DocClass, &m.Pinned,
				&headingPath, &m.SectionAnchor, &m.Excerpt, &m.Distance)
			if err != nil {
				return fmt.Errorf("scan semantic match: %w", err)
			}
			m.HeadingPath = headingPath
			m.Score = distanceScore(profile.Distance, m.Distance)
			matches = append(matches, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// resolveEfSearch picks the session ef_search for a top_k, clamped to the
// profile's bounds.
func resolveEfSearch(profile *storage.EmbeddingProfile, topK int) int {
	min := defaultEfSearchMin
	factor := defaultEfSearchFactor
	max := defaultEfSearchMax
	if pc, err := profile.Config(); err == nil {
		if pc.EfSearchMin > 0 {
			min = pc.EfSearchMin
		}
		if pc.EfSearchFactor > 0 {
			factor = pc.EfSearchFactor
		}
		if pc.EfSearchMax > 0 {
			max = pc.EfSearchMax
		}
	}

	want := min
	if topK > want {
		want = topK
	}
	if scaled := int(math.Ceil(float64(topK) * factor)); scaled > want {
		want = scaled
	}
	if want < min {
		want = min
	}
	if want > max {
		want = max
	}
	return want
}

// distanceOperator returns the pgvector operator for a distance metric.
func distanceOperator(d storage.Distance) string {
	switch d {
	case storage.DistanceL2:
		return "<->"
	case storage.DistanceIP:
		return "<#>"
	default:
		return "<=>"
	}
}

// distanceScore converts a raw distance into a descending score.
func distanceScore(d storage.Distance, distance float64) float64 {
	if d == storage.DistanceCosine || d == "" {
		return 1 - distance
	}
	return -distance
}
