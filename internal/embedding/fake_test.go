package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeEmbedder_Deterministic(t *testing.T) {
	f := NewFakeEmbedder(16)
	ctx := context.Background()

	first, err := f.Embed(ctx, EmbedRequest{Texts: []string{"token refresh"}})
	require.NoError(t, err)
	second, err := f.Embed(ctx, EmbedRequest{Texts: []string{"token refresh"}})
	require.NoError(t, err)

	assert.Equal(t, first.Vectors, second.Vectors)
	assert.Equal(t, 16, first.Dimensions)
	require.Len(t, first.Vectors, 1)
	assert.Len(t, first.Vectors[0], 16)
}

func TestFakeEmbedder_TokenOrderIrrelevant(t *testing.T) {
	f := NewFakeEmbedder(8)
	ctx := context.Background()

	a, err := f.Embed(ctx, EmbedRequest{Texts: []string{"refresh token"}})
	require.NoError(t, err)
	b, err := f.Embed(ctx, EmbedRequest{Texts: []string{"Token, refresh!"}})
	require.NoError(t, err)

	// Tokenization lowercases and strips punctuation, then sorts.
	assert.Equal(t, a.Vectors[0], b.Vectors[0])
}

func TestFakeEmbedder_DifferentTextsDiffer(t *testing.T) {
	f := NewFakeEmbedder(8)
	ctx := context.Background()

	a, err := f.Embed(ctx, EmbedRequest{Texts: []string{"alpha"}})
	require.NoError(t, err)
	b, err := f.Embed(ctx, EmbedRequest{Texts: []string{"beta"}})
	require.NoError(t, err)

	assert.NotEqual(t, a.Vectors[0], b.Vectors[0])
}

func TestFakeEmbedder_ValuesInRange(t *testing.T) {
	f := NewFakeEmbedder(64)
	result, err := f.Embed(context.Background(), EmbedRequest{Texts: []string{"bounds check"}})
	require.NoError(t, err)

	for _, v := range result.Vectors[0] {
		assert.GreaterOrEqual(t, v, float32(-1))
		assert.LessOrEqual(t, v, float32(1))
	}
}

func TestFakeEmbedder_DefaultsDims(t *testing.T) {
	f := NewFakeEmbedder(0)
	result, err := f.Embed(context.Background(), EmbedRequest{Texts: []string{"x"}})
	require.NoError(t, err)
	assert.Equal(t, 8, result.Dimensions)
}

func TestSupportsContextual(t *testing.T) {
	_, ok := SupportsContextual(NewFakeEmbedder(8))
	assert.True(t, ok)

	_, ok = SupportsContextual(NewJinaClient("", "key", "jina-embeddings-v4", 0, false))
	assert.True(t, ok)

	// Voyage capability depends on the model family.
	_, ok = SupportsContextual(NewVoyageClient("", "key", "voyage-context-3", 0))
	assert.True(t, ok)
	_, ok = SupportsContextual(NewVoyageClient("", "key", "voyage-3.5", 0))
	assert.False(t, ok)

	_, ok = SupportsContextual(NewOpenAICompatClient("http://x", "key", "m", 0))
	assert.False(t, ok)
}
