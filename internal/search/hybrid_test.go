package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeightsFor_IdentifierHeavy(t *testing.T) {
	want := FusionWeights{Lexical: 0.3, Semantic: 0.3, Trigram: 0.4}

	assert.Equal(t, want, WeightsFor(`http.ListenAndServe(addr, nil)`))
	assert.Equal(t, want, WeightsFor(`panic: runtime error {goroutine 12}`))
	assert.Equal(t, want, WeightsFor(`at server.go:142`))
}

func TestWeightsFor_LongNaturalLanguage(t *testing.T) {
	want := FusionWeights{Lexical: 0.25, Semantic: 0.7, Trigram: 0.05}
	assert.Equal(t, want, WeightsFor("how do we rotate refresh tokens on logout"))
}

func TestWeightsFor_ShortTechnical(t *testing.T) {
	want := FusionWeights{Lexical: 0.5, Semantic: 0.35, Trigram: 0.15}
	assert.Equal(t, want, WeightsFor("token rotation"))
}

func TestUseTrigram(t *testing.T) {
	assert.True(t, useTrigram("ECONNRESET"))
	assert.True(t, useTrigram("pkg/storage"))
	assert.True(t, useTrigram("retry-policy"))

	// All-lowercase prose has no identifier signal.
	assert.False(t, useTrigram("token rotation"))
	// Too short even with signal characters.
	assert.False(t, useTrigram("a:"))
}

func TestGroupByItem_CapsChunksPerItem(t *testing.T) {
	fused := []*Match{
		lexMatch(0x01, 0xaa, 0),
		lexMatch(0x02, 0xaa, 0),
		lexMatch(0x03, 0xbb, 0),
		lexMatch(0x04, 0xaa, 0),
		lexMatch(0x05, 0xaa, 0),
	}
	fused[0].Score = 0.9
	fused[0].Title = "auth notes"
	fused[2].Score = 0.4

	items := groupByItem(fused, 3)
	require.Len(t, items, 2)

	first := items[0]
	assert.Equal(t, fillID(0xaa), first.ItemID)
	assert.Equal(t, "auth notes", first.Title)
	assert.Equal(t, 0.9, first.Score)
	require.Len(t, first.Chunks, 3)
	assert.Equal(t, fillID(0x01), first.Chunks[0].ChunkID)

	second := items[1]
	assert.Equal(t, fillID(0xbb), second.ItemID)
	assert.Equal(t, 0.4, second.Score)
	assert.Len(t, second.Chunks, 1)
}

func TestGroupByItem_PreservesFusedItemOrder(t *testing.T) {
	fused := []*Match{
		lexMatch(0x01, 0xcc, 0),
		lexMatch(0x02, 0xaa, 0),
		lexMatch(0x03, 0xcc, 0),
	}
	items := groupByItem(fused, 3)
	require.Len(t, items, 2)
	assert.Equal(t, fillID(0xcc), items[0].ItemID)
	assert.Equal(t, fillID(0xaa), items[1].ItemID)
}

func TestHybridOptions_Defaults(t *testing.T) {
	opts := HybridOptions{}.withDefaults()
	assert.Equal(t, DefaultTopK, opts.TopK)
	assert.Equal(t, DefaultMaxChunks, opts.MaxChunks)

	opts = HybridOptions{TopK: 5, MaxChunks: 1}.withDefaults()
	assert.Equal(t, 5, opts.TopK)
	assert.Equal(t, 1, opts.MaxChunks)
}
