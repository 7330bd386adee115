package embedding

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"
)

// OpenAICompatClient talks to any OpenAI-compatible /embeddings endpoint.
// The base URL is required since no single default makes sense.
type OpenAICompatClient struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	client     *http.Client
}

var _ Embedder = (*OpenAICompatClient)(nil)

// NewOpenAICompatClient creates an OpenAI-compatible client.
func NewOpenAICompatClient(baseURL, apiKey, model string, dimensions int) *OpenAICompatClient {
	return &OpenAICompatClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		dimensions: dimensions,
		client:     &http.Client{Timeout: 60 * time.Second},
	}
}

type openAIRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Embed embeds texts. The protocol has no input-type distinction.
func (c *OpenAICompatClient) Embed(ctx context.Context, req EmbedRequest) (*EmbedResult, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	var resp openAIResponse
	err := postJSON(ctx, c.client, c.baseURL+"/embeddings", c.apiKey, openAIRequest{
		Input:      req.Texts,
		Model:      c.model,
		Dimensions: c.dimensions,
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
		Provider:   ProviderOpenAICompat,
		Model:      c.model,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

// Health embeds a short probe text.
func (c *OpenAICompatClient) Health(ctx context.Context) error {
	_, err := c.Embed(ctx, EmbedRequest{Texts: []string{"ping"}, InputType: InputQuery})
	return err
}

// Provider returns the provider name.
func (c *OpenAICompatClient) Provider() string { return ProviderOpenAICompat }

// Model returns the model name.
func (c *OpenAICompatClient) Model() string { return c.model }
