package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryClient_SetGet(t *testing.T) {
	c := NewMemoryClient(10)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	val, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), val)
}

func TestMemoryClient_Miss(t *testing.T) {
	c := NewMemoryClient(10)
	defer c.Close()

	_, err := c.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryClient_Expiry(t *testing.T) {
	c := NewMemoryClient(10)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), -time.Second))
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryClient_Delete(t *testing.T) {
	c := NewMemoryClient(10)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, c.Delete(ctx, "k"))
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryClient_DeleteByPrefix(t *testing.T) {
	c := NewMemoryClient(10)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "p:a:search:1", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "p:a:search:2", []byte("2"), time.Minute))
	require.NoError(t, c.Set(ctx, "p:b:search:1", []byte("3"), time.Minute))

	require.NoError(t, c.DeleteByPrefix(ctx, "p:a:"))

	_, err := c.Get(ctx, "p:a:search:1")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "p:a:search:2")
	assert.ErrorIs(t, err, ErrCacheMiss)

	val, err := c.Get(ctx, "p:b:search:1")
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), val)
}

func TestMemoryClient_EvictsAtCapacity(t *testing.T) {
	c := NewMemoryClient(2)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "old", []byte("1"), time.Second))
	require.NoError(t, c.Set(ctx, "mid", []byte("2"), time.Minute))
	require.NoError(t, c.Set(ctx, "new", []byte("3"), time.Hour))

	// The entry closest to expiry goes first.
	_, err := c.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrCacheMiss)

	val, err := c.Get(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), val)
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "a:b:c", CacheKey("a", "b", "c"))
	assert.Equal(t, "p:proj-1:search:q1", ProjectCacheKey("proj-1", "search", "q1"))
}
