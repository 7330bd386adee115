package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/memento-ai/memento/internal/cache"
	"github.com/memento-ai/memento/internal/observability"
)

// defaultResultTTL keeps cached results short-lived; any commit to the
// project invalidates them outright.
const defaultResultTTL = 60 * time.Second

// ResultCache memoizes hybrid search results per project. Cache failures
// never fail a search.
type ResultCache struct {
	client cache.Client
	log    *observability.Logger
	ttl    time.Duration
}

// NewResultCache creates a search result cache over the given backend.
func NewResultCache(client cache.Client, log *observability.Logger, ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = defaultResultTTL
	}
	return &ResultCache{client: client, log: log, ttl: ttl}
}

// Get returns the cached result for the request, or nil on miss.
func (c *ResultCache) Get(ctx context.Context, projectID uuid.UUID, query string, filters Filters, opts HybridOptions) *HybridResult {
	if c == nil || c.client == nil {
		return nil
	}
	data, err := c.client.Get(ctx, resultKey(projectID, query, filters, opts))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil
	}
	if err != nil {
		c.log.Debug().Err(err).Msg("search cache get failed")
		return nil
	}
	var result HybridResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return &result
}

// Put stores the result for the request.
func (c *ResultCache) Put(ctx context.Context, projectID uuid.UUID, query string, filters Filters, opts HybridOptions, result *HybridResult) {
	if c == nil || c.client == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, resultKey(projectID, query, filters, opts), data, c.ttl); err != nil {
		c.log.Debug().Err(err).Msg("search cache put failed")
	}
}

// InvalidateProject drops every cached result of the project. Called after
// each commit.
func (c *ResultCache) InvalidateProject(ctx context.Context, projectID uuid.UUID) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.DeleteByPrefix(ctx, cache.ProjectCacheKey(projectID.String(), "search")); err != nil {
		c.log.Debug().Err(err).Msg("search cache invalidation failed")
	}
}

// resultKey derives a stable key from the full request shape.
func resultKey(projectID uuid.UUID, query string, filters Filters, opts HybridOptions) string {
	payload, _ := json.Marshal(struct {
		Query   string        `json:"q"`
		Filters Filters       `json:"f"`
		Opts    HybridOptions `json:"o"`
	}{query, filters, opts})
	sum := sha256.Sum256(payload)
	return cache.ProjectCacheKey(projectID.String(), "search", hex.EncodeToString(sum[:16]))
}
