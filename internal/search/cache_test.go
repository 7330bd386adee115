package search

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memento-ai/memento/internal/cache"
	"github.com/memento-ai/memento/internal/observability"
)

func testResultCache(t *testing.T) *ResultCache {
	t.Helper()
	client := cache.NewMemoryClient(100)
	t.Cleanup(func() { client.Close() })
	log := observability.NewLogger(observability.LogConfig{Level: "error", Output: io.Discard})
	return NewResultCache(client, log, time.Minute)
}

func TestResultCache_RoundTrip(t *testing.T) {
	rc := testResultCache(t)
	ctx := context.Background()
	projectID := uuid.New()
	opts := HybridOptions{TopK: 10}

	assert.Nil(t, rc.Get(ctx, projectID, "auth", Filters{}, opts))

	result := &HybridResult{
		Items:   []*ItemResult{{ItemID: uuid.New(), Title: "auth notes", Score: 0.4}},
		Weights: FusionWeights{Lexical: 0.5, Semantic: 0.35, Trigram: 0.15},
	}
	rc.Put(ctx, projectID, "auth", Filters{}, opts, result)

	got := rc.Get(ctx, projectID, "auth", Filters{}, opts)
	require.NotNil(t, got)
	require.Len(t, got.Items, 1)
	assert.Equal(t, result.Items[0].ItemID, got.Items[0].ItemID)
	assert.Equal(t, result.Weights, got.Weights)
}

func TestResultCache_KeyedByRequestShape(t *testing.T) {
	rc := testResultCache(t)
	ctx := context.Background()
	projectID := uuid.New()

	rc.Put(ctx, projectID, "auth", Filters{}, HybridOptions{TopK: 10}, &HybridResult{})

	assert.Nil(t, rc.Get(ctx, projectID, "auth", Filters{}, HybridOptions{TopK: 20}))
	assert.Nil(t, rc.Get(ctx, projectID, "auth", Filters{PinnedOnly: true}, HybridOptions{TopK: 10}))
	assert.Nil(t, rc.Get(ctx, uuid.New(), "auth", Filters{}, HybridOptions{TopK: 10}))
}

func TestResultCache_InvalidateProject(t *testing.T) {
	rc := testResultCache(t)
	ctx := context.Background()
	projectA := uuid.New()
	projectB := uuid.New()
	opts := HybridOptions{TopK: 10}

	rc.Put(ctx, projectA, "auth", Filters{}, opts, &HybridResult{})
	rc.Put(ctx, projectB, "auth", Filters{}, opts, &HybridResult{})

	rc.InvalidateProject(ctx, projectA)

	assert.Nil(t, rc.Get(ctx, projectA, "auth", Filters{}, opts))
	assert.NotNil(t, rc.Get(ctx, projectB, "auth", Filters{}, opts))
}

func TestResultCache_NilSafe(t *testing.T) {
	var rc *ResultCache
	ctx := context.Background()
	projectID := uuid.New()

	assert.Nil(t, rc.Get(ctx, projectID, "q", Filters{}, HybridOptions{}))
	rc.Put(ctx, projectID, "q", Filters{}, HybridOptions{}, &HybridResult{})
	rc.InvalidateProject(ctx, projectID)
}

func TestResultKey_Stable(t *testing.T) {
	projectID := uuid.New()
	a := resultKey(projectID, "q", Filters{Kinds: []string{"note"}}, HybridOptions{TopK: 5})
	b := resultKey(projectID, "q", Filters{Kinds: []string{"note"}}, HybridOptions{TopK: 5})
	c := resultKey(projectID, "q2", Filters{Kinds: []string{"note"}}, HybridOptions{TopK: 5})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
