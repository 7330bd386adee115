package embedding

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"
)

const jinaDefaultBaseURL = "https://api.jina.ai"

// JinaClient talks to the Jina embeddings API. Contextual embedding is
// expressed through late chunking on the same endpoint.
type JinaClient struct {
	baseURL      string
	apiKey       string
	model        string
	dimensions   int
	lateChunking bool
	client       *http.Client
}

var (
	_ Embedder           = (*JinaClient)(nil)
	_ ContextualEmbedder = (*JinaClient)(nil)
)

// NewJinaClient creates a Jina client.
func NewJinaClient(baseURL, apiKey, model string, dimensions int, lateChunking bool) *JinaClient {
	if baseURL == "" {
		baseURL = jinaDefaultBaseURL
	}
	return &JinaClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		model:        model,
		dimensions:   dimensions,
		lateChunking: lateChunking,
		client:       &http.Client{Timeout: 60 * time.Second},
	}
}

type jinaRequest struct {
	Input        []string `json:"input"`
	Model        string   `json:"model"`
	Task         string   `json:"task"`
	Dimensions   int      `json:"dimensions,omitempty"`
	LateChunking bool     `json:"late_chunking,omitempty"`
}

type jinaResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Embed embeds texts with the retrieval task matching the input type.
func (c *JinaClient) Embed(ctx context.Context, req EmbedRequest) (*EmbedResult, error) {
	task := "retrieval.passage"
	if req.InputType == InputQuery {
		task = "retrieval.query"
	}
	return c.call(ctx, req.Texts, task, false)
}

// EmbedDocumentChunks embeds all chunks in one call with late chunking so
// each vector sees the surrounding document.
func (c *JinaClient) EmbedDocumentChunks(ctx context.Context, chunks []string) (*EmbedResult, error) {
	return c.call(ctx, chunks, "retrieval.passage", true)
}

func (c *JinaClient) call(ctx context.Context, texts []string, task string, lateChunking bool) (*EmbedResult, error) {
	var resp jinaResponse
	err := postJSON(ctx, c.client, c.baseURL+"/v1/embeddings", c.apiKey, jinaRequest{
		Input:        texts,
		Model:        c.model,
		Task:         task,
		Dimensions:   c.dimensions,
		LateChunking: lateChunking || c.lateChunking,
	}, &resp)
	if err != nil {
		return nil, err
	}

	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vectors[i] = d.Embedding
	}

	return &EmbedResult{
		Vectors:    vectors,
		Dimensions: dimsOf(vectors),
		Provider:   ProviderJina,
		Model:      c.model,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

// Health embeds a short probe text.
func (c *JinaClient) Health(ctx context.Context) error {
	_, err := c.Embed(ctx, EmbedRequest{Texts: []string{"ping"}, InputType: InputQuery})
	return err
}

// Provider returns the provider name.
func (c *JinaClient) Provider() string { return ProviderJina }

// Model returns the model name.
func (c *JinaClient) Model() string { return c.model }
