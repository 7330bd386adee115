package index

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memento-ai/memento/internal/storage"
)

func testProfile() *storage.EmbeddingProfile {
	return &storage.EmbeddingProfile{
		ID:       uuid.MustParse("11111111-2222-3333-4444-555555555555"),
		Dims:     1024,
		Distance: storage.DistanceCosine,
	}
}

func TestIndexName_Deterministic(t *testing.T) {
	p := testProfile()
	name := IndexName(p)

	assert.Equal(t, name, IndexName(p))
	assert.True(t, strings.HasPrefix(name, "chunk_embeddings_hnsw_"))
	assert.Len(t, name, len("chunk_embeddings_hnsw_")+10)

	other := testProfile()
	other.ID = uuid.MustParse("99999999-2222-3333-4444-555555555555")
	assert.NotEqual(t, name, IndexName(other))
}

func TestOpclass(t *testing.T) {
	op, err := Opclass(storage.DistanceCosine)
	require.NoError(t, err)
	assert.Equal(t, "vector_cosine_ops", op)

	op, err = Opclass(storage.DistanceL2)
	require.NoError(t, err)
	assert.Equal(t, "vector_l2_ops", op)

	op, err = Opclass(storage.DistanceIP)
	require.NoError(t, err)
	assert.Equal(t, "vector_ip_ops", op)

	_, err = Opclass("hamming")
	assert.Error(t, err)
}

func TestDefinition(t *testing.T) {
	p := testProfile()
	def, err := definition(p, true)
	require.NoError(t, err)

	assert.Contains(t, def, "CREATE INDEX CONCURRENTLY")
	assert.Contains(t, def, "vector(1024)")
	assert.Contains(t, def, "vector_cosine_ops")
	assert.Contains(t, def, p.ID.String())
	assert.NotContains(t, def, "WITH (")
}

func TestDefinition_HNSWParams(t *testing.T) {
	p := testProfile()
	p.ProviderConfig, _ = json.Marshal(map[string]int{
		"hnsw_m":               32,
		"hnsw_ef_construction": 128,
	})

	def, err := definition(p, false)
	require.NoError(t, err)
	assert.Contains(t, def, "WITH (m = 32, ef_construction = 128)")
	assert.NotContains(t, def, "CONCURRENTLY")
}

func TestMatchesProfile(t *testing.T) {
	p := testProfile()
	def, err := definition(p, false)
	require.NoError(t, err)

	assert.True(t, matchesProfile(def, p))

	drifted := testProfile()
	drifted.Dims = 512
	assert.False(t, matchesProfile(def, drifted))

	drifted = testProfile()
	drifted.Distance = storage.DistanceL2
	assert.False(t, matchesProfile(def, drifted))
}

func TestMatchesProfile_ChecksHNSWParams(t *testing.T) {
	p := testProfile()
	p.ProviderConfig, _ = json.Marshal(map[string]int{"hnsw_m": 32})

	// Postgres records WITH options as m='32' in pg_indexes.
	def := `CREATE INDEX chunk_embeddings_hnsw_x ON chunk_embeddings USING hnsw ` +
		`((embedding_vector::vector(1024)) vector_cosine_ops) WITH (m='32') ` +
		`WHERE embedding_profile_id = '11111111-2222-3333-4444-555555555555'`
	assert.True(t, matchesProfile(def, p))

	p.ProviderConfig, _ = json.Marshal(map[string]int{"hnsw_m": 16})
	assert.False(t, matchesProfile(def, p))
}
