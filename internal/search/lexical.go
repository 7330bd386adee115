package search

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/memento-ai/memento/internal/observability"
	"github.com/memento-ai/memento/internal/storage"
)

// identifierRe marks queries likely to contain code identifiers, paths, or
// error strings, which trigram similarity handles better than stemming.
var identifierRe = regexp.MustCompile(`[A-Z0-9_:/.\-]`)

// useTrigram reports whether the query earns a trigram-similarity term.
func useTrigram(query string) bool {
	return len(query) >= 3 && identifierRe.MatchString(query)
}

// Lexical runs full-text search over memory chunks, optionally BM25-ranked
// when the database supports it.
type Lexical struct {
	db   storage.DB
	caps *Caps
	log  *observability.Logger
}

// NewLexical creates the lexical engine.
func NewLexical(db storage.DB, caps *Caps, log *observability.Logger) *Lexical {
	return &Lexical{db: db, caps: caps, log: log}
}

// Search returns chunk matches ranked by text relevance, scoped to the
// latest version of each active item.
func (l *Lexical) Search(ctx context.Context, projectID uuid.UUID, query string, filters Filters, opts Options) ([]*Match, error) {
	opts = opts.withDefaults()
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	if l.caps != nil && l.caps.HasBM25(ctx) {
		matches, err := l.run(ctx, projectID, query, filters, opts, true)
		if err == nil {
			return matches, nil
		}
		// A failing BM25 query usually means the index went away; re-probe
		// next time and answer this search with full-text rank.
		l.caps.Invalidate()
		l.log.Warn().Err(err).Msg("bm25 query failed, falling back to full-text")
	}
	return l.run(ctx, projectID, query, filters, opts, false)
}

func (l *Lexical) run(ctx context.Context, projectID uuid.UUID, query string, filters Filters, opts Options, bm25 bool) ([]*Match, error) {
	trigram := useTrigram(query)

	q := newQueryBuilder()
	project := q.arg(projectID)
	text := q.arg(query)
	excerpt := q.arg(opts.MaxChunkChars)

	rankExpr := "ts_rank(c.tsv, tsq.q)"
	matchClause := "c.tsv @@ tsq.q"
	fromExtra := ", websearch_to_tsquery('english', " + text + ") tsq(q)"
	if bm25 {
		rankExpr = "paradedb.score(c.id)"
		matchClause = "c.chunk_text @@@ " + text
		fromExtra = ""
	}

	trigramExpr := "0::float8"
	scoreExpr := rankExpr
	if trigram {
		trigramExpr = "similarity(c.chunk_text, " + text + ")"
		scoreExpr = fmt.Sprintf("%s + %s * %s", rankExpr, q.arg(opts.TrigramWeight), trigramExpr)
	}

	where := []string{
		"c.project_id = " + project,
		"i.status = 'active'",
		matchClause,
		latestVersionClause,
	}
	where = append(where, filterClauses(&q, filters)...)

	sqlText := fmt.Sprintf(`
		SELECT c.id, i.id, c.version_id, i.title, i.kind,
		       COALESCE(i.canonical_key, ''), COALESCE(i.doc_class, ''), i.pinned,
		       c.heading_path, COALESCE(c.section_anchor, ''),
		       LEFT(c.chunk_text, %s),
		       %s AS lexical_score,
		       %s AS trigram_score
		FROM memory_chunks c
		JOIN memory_versions v ON v.id = c.version_id
		JOIN memory_items i ON i.id = v.item_id%s
		WHERE %s
		ORDER BY %s DESC, c.id ASC
		LIMIT %s`,
		excerpt, rankExpr, trigramExpr, fromExtra,
		strings.Join(where, " AND "), scoreExpr, q.arg(opts.TopK))

	rows, err := l.db.QueryContext(ctx, sqlText, q.args...)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer rows.Close()

	var matches []*Match
	for rows.Next() {
		m := &Match{}
		var headingPath pq.StringArray
		err := rows.Scan(&m.ChunkID, &m.ItemID, &m.VersionID, &m.Title, &m.Kind,
			&m.CanonicalKey, &m.DocClass, &m.Pinned,
			&headingPath, &m.SectionAnchor, &m.Excerpt,
			&m.LexicalScore, &m.TrigramScore)
		if err != nil {
			return nil, fmt.Errorf("scan lexical match: %w", err)
		}
		m.HeadingPath = headingPath
		m.Score = m.LexicalScore + opts.TrigramWeight*m.TrigramScore
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// latestVersionClause restricts matches to each item's newest version so
// superseded content never surfaces in search.
const latestVersionClause = `NOT EXISTS (
	SELECT 1 FROM memory_versions newer
	WHERE newer.item_id = v.item_id AND newer.version_num > v.version_num
)`

// filterClauses appends WHERE fragments for the optional item filters.
func filterClauses(q *queryBuilder, f Filters) []string {
	var clauses []string
	if len(f.Kinds) > 0 {
		clauses = append(clauses, "i.kind = ANY("+q.arg(pq.Array(f.Kinds))+")")
	}
	if len(f.Tags) > 0 {
		clauses = append(clauses, "i.tags && "+q.arg(pq.Array(f.Tags)))
	}
	if len(f.DocClasses) > 0 {
		clauses = append(clauses, "i.doc_class = ANY("+q.arg(pq.Array(f.DocClasses))+")")
	}
	if f.PinnedOnly {
		clauses = append(clauses, "i.pinned = TRUE")
	}
	return clauses
}

// queryBuilder numbers positional arguments as they are added.
type queryBuilder struct {
	args []interface{}
}

func newQueryBuilder() queryBuilder {
	return queryBuilder{}
}

// arg registers a value and returns its placeholder.
func (q *queryBuilder) arg(v interface{}) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("$%d", len(q.args))
}
