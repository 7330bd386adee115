package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVoyageClient_Embed(t *testing.T) {
	var gotPath string
	var gotReq voyageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		// Indices arrive out of order; the client must sort them back.
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"embedding": []float32{0.2, 0.2}, "index": 1},
				{"embedding": []float32{0.1, 0.1}, "index": 0},
			},
			"model": "voyage-3.5",
			"usage": map[string]int{"total_tokens": 7},
		})
	}))
	defer srv.Close()

	c := NewVoyageClient(srv.URL, "key", "voyage-3.5", 2)
	result, err := c.Embed(context.Background(), EmbedRequest{
		Texts:     []string{"first", "second"},
		InputType: InputQuery,
	})
	require.NoError(t, err)

	assert.Equal(t, "/v1/embeddings", gotPath)
	assert.Equal(t, []string{"first", "second"}, gotReq.Input)
	assert.Equal(t, "voyage-3.5", gotReq.Model)
	assert.Equal(t, "query", gotReq.InputType)
	assert.Equal(t, 2, gotReq.OutputDimension)

	require.Len(t, result.Vectors, 2)
	assert.Equal(t, []float32{0.1, 0.1}, result.Vectors[0])
	assert.Equal(t, []float32{0.2, 0.2}, result.Vectors[1])
	assert.Equal(t, 2, result.Dimensions)
	assert.Equal(t, ProviderVoyage, result.Provider)
	assert.Equal(t, 7, result.TokensUsed)
}

func TestVoyageClient_ContextualModelRoutesQueries(t *testing.T) {
	var gotPath string
	var gotReq voyageContextualRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{
				{"embeddings": [][]float32{{0.5, 0.5}}},
			},
		})
	}))
	defer srv.Close()

	c := NewVoyageClient(srv.URL, "key", "voyage-context-3", 0)
	require.True(t, c.Contextual())

	result, err := c.Embed(context.Background(), EmbedRequest{
		Texts:     []string{"lone query"},
		InputType: InputQuery,
	})
	require.NoError(t, err)

	assert.Equal(t, "/v1/contextualizedembeddings", gotPath)
	// Each text travels as its own single-chunk document.
	assert.Equal(t, [][]string{{"lone query"}}, gotReq.Inputs)
	assert.Equal(t, "query", gotReq.InputType)
	require.Len(t, result.Vectors, 1)
	assert.Equal(t, []float32{0.5, 0.5}, result.Vectors[0])
}

func TestVoyageClient_EmbedDocumentChunks_NestedShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"data": []map[string]interface{}{
					{"embedding": []float32{0.2}, "index": 1},
					{"embedding": []float32{0.1}, "index": 0},
				}},
			},
		})
	}))
	defer srv.Close()

	c := NewVoyageClient(srv.URL, "key", "voyage-context-3", 0)
	result, err := c.EmbedDocumentChunks(context.Background(), []string{"intro", "body"})
	require.NoError(t, err)

	require.Len(t, result.Vectors, 2)
	assert.Equal(t, []float32{0.1}, result.Vectors[0])
	assert.Equal(t, []float32{0.2}, result.Vectors[1])
}

func TestVoyageClient_EmbedDocumentChunks_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{
				{"embeddings": [][]float32{{0.1}}},
			},
		})
	}))
	defer srv.Close()

	c := NewVoyageClient(srv.URL, "key", "voyage-context-3", 0)
	_, err := c.EmbedDocumentChunks(context.Background(), []string{"a", "b", "c"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count mismatch")
}

func TestVoyageClient_EmbedDocumentChunks_RequiresContextualModel(t *testing.T) {
	c := NewVoyageClient("", "key", "voyage-3.5", 0)
	_, err := c.EmbedDocumentChunks(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not support contextual")
}

func TestJinaClient_TaskFollowsInputType(t *testing.T) {
	var tasks []string
	var lateFlags []bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req jinaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		tasks = append(tasks, req.Task)
		lateFlags = append(lateFlags, req.LateChunking)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"embedding": []float32{0.1}, "index": 0},
			},
		})
	}))
	defer srv.Close()

	c := NewJinaClient(srv.URL, "key", "jina-embeddings-v4", 0, false)
	ctx := context.Background()

	_, err := c.Embed(ctx, EmbedRequest{Texts: []string{"q"}, InputType: InputQuery})
	require.NoError(t, err)
	_, err = c.Embed(ctx, EmbedRequest{Texts: []string{"p"}, InputType: InputPassage})
	require.NoError(t, err)
	_, err = c.EmbedDocumentChunks(ctx, []string{"chunk"})
	require.NoError(t, err)

	assert.Equal(t, []string{"retrieval.query", "retrieval.passage", "retrieval.passage"}, tasks)
	assert.Equal(t, []bool{false, false, true}, lateFlags)
}

func TestOpenAICompatClient_Embed(t *testing.T) {
	var gotReq openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"embedding": []float32{0.3}, "index": 1},
				{"embedding": []float32{0.2}, "index": 0},
			},
			"usage": map[string]int{"total_tokens": 3},
		})
	}))
	defer srv.Close()

	c := NewOpenAICompatClient(srv.URL, "key", "text-embedding-3-small", 1)
	result, err := c.Embed(context.Background(), EmbedRequest{Texts: []string{"a", "b"}})
	require.NoError(t, err)

	assert.Equal(t, "text-embedding-3-small", gotReq.Model)
	assert.Equal(t, 1, gotReq.Dimensions)
	assert.Equal(t, []float32{0.2}, result.Vectors[0])
	assert.Equal(t, []float32{0.3}, result.Vectors[1])
	assert.Equal(t, 3, result.TokensUsed)
}

func TestOpenAICompatClient_RequiresBaseURL(t *testing.T) {
	c := NewOpenAICompatClient("", "key", "m", 0)
	_, err := c.Embed(context.Background(), EmbedRequest{Texts: []string{"x"}})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
