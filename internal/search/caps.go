package search

import (
	"context"
	"sync"
	"time"

	"github.com/memento-ai/memento/internal/observability"
	"github.com/memento-ai/memento/internal/storage"
)

// defaultCapsTTL bounds how long a BM25 capability probe stays cached.
const defaultCapsTTL = 5 * time.Minute

// Caps probes the database for optional retrieval capabilities and caches
// the answer. BM25 ranking needs both the pg_search extension and a BM25
// index on memory_chunks; without them lexical search uses full-text rank.
type Caps struct {
	db  storage.DB
	log *observability.Logger
	ttl time.Duration

	mu        sync.Mutex
	hasBM25   bool
	checkedAt time.Time
}

// NewCaps creates a capability prober with the given cache TTL.
func NewCaps(db storage.DB, log *observability.Logger, ttl time.Duration) *Caps {
	if ttl <= 0 {
		ttl = defaultCapsTTL
	}
	return &Caps{db: db, log: log, ttl: ttl}
}

// HasBM25 reports whether BM25 ranking is available, probing at most once
// per TTL. Probe failures are treated as "not available".
func (c *Caps) HasBM25(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Since(c.checkedAt) < c.ttl {
		return c.hasBM25
	}

	c.hasBM25 = c.probe(ctx)
	c.checkedAt = time.Now()
	return c.hasBM25
}

// Invalidate drops the cached probe result. Called after a BM25 query fails
// at runtime so the next search re-probes instead of failing again.
func (c *Caps) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkedAt = time.Time{}
	c.hasBM25 = false
}

func (c *Caps) probe(ctx context.Context) bool {
	var hasExt bool
	err := c.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'pg_search')`,
	).Scan(&hasExt)
	if err != nil {
		c.log.Debug().Err(err).Msg("bm25 extension probe failed")
		return false
	}
	if !hasExt {
		return false
	}

	var hasIndex bool
	err = c.db.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM pg_indexes
			WHERE tablename = 'memory_chunks' AND indexdef ILIKE '%bm25%'
		)`,
	).Scan(&hasIndex)
	if err != nil {
		c.log.Debug().Err(err).Msg("bm25 index probe failed")
		return false
	}
	return hasIndex
}
