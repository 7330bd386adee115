package embedding

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

const voyageDefaultBaseURL = "https://api.voyageai.com"

// VoyageClient talks to the Voyage embeddings API. Models named
// voyage-context-* use the contextualized endpoint and support the
// whole-document capability.
type VoyageClient struct {
	baseURL   string
	apiKey    string
	model     string
	outputDim int
	client    *http.Client
}

var _ Embedder = (*VoyageClient)(nil)

// NewVoyageClient creates a Voyage client.
func NewVoyageClient(baseURL, apiKey, model string, outputDim int) *VoyageClient {
	if baseURL == "" {
		baseURL = voyageDefaultBaseURL
	}
	return &VoyageClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		model:     model,
		outputDim: outputDim,
		client:    &http.Client{Timeout: 60 * time.Second},
	}
}

// Contextual reports whether the model embeds chunks with document context.
func (c *VoyageClient) Contextual() bool {
	return strings.HasPrefix(c.model, "voyage-context-")
}

type voyageRequest struct {
	Input           []string `json:"input"`
	Model           string   `json:"model"`
	InputType       string   `json:"input_type"`
	OutputDimension int      `json:"output_dimension,omitempty"`
}

type voyageResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

type voyageContextualRequest struct {
	Inputs          [][]string `json:"inputs"`
	Model           string     `json:"model"`
	InputType       string     `json:"input_type"`
	OutputDimension int        `json:"output_dimension,omitempty"`
}

// voyageContextualResponse accepts both published response shapes: a flat
// results[0].embeddings list and the nested data[].data[].embedding form.
type voyageContextualResponse struct {
	Results []struct {
		Embeddings [][]float32 `json:"embeddings"`
	} `json:"results"`
	Data []struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Embed embeds texts. Contextual models route through the contextualized
// endpoint with each text as its own single-chunk document.
func (c *VoyageClient) Embed(ctx context.Context, req EmbedRequest) (*EmbedResult, error) {
	inputType := "document"
	if req.InputType == InputQuery {
		inputType = "query"
	}

	if c.Contextual() {
		inputs := make([][]string, len(req.Texts))
		for i, t := range req.Texts {
			inputs[i] = []string{t}
		}
		return c.embedContextualized(ctx, inputs, inputType, len(req.Texts))
	}

	var resp voyageResponse
	err := postJSON(ctx, c.client, c.baseURL+"/v1/embeddings", c.apiKey, voyageRequest{
		Input:           req.Texts,
		Model:           c.model,
		InputType:       inputType,
		OutputDimension: c.outputDim,
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
		Provider:   ProviderVoyage,
		Model:      c.model,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

// EmbedDocumentChunks embeds all chunks as one document so each vector
// carries whole-document context. Only contextual models support this.
func (c *VoyageClient) EmbedDocumentChunks(ctx context.Context, chunks []string) (*EmbedResult, error) {
	if !c.Contextual() {
		return nil, fmt.Errorf("model %s does not support contextual embedding", c.model)
	}
	return c.embedContextualized(ctx, [][]string{chunks}, "document", len(chunks))
}

func (c *VoyageClient) embedContextualized(ctx context.Context, inputs [][]string, inputType string, want int) (*EmbedResult, error) {
	var resp voyageContextualResponse
	err := postJSON(ctx, c.client, c.baseURL+"/v1/contextualizedembeddings", c.apiKey, voyageContextualRequest{
		Inputs:          inputs,
		Model:           c.model,
		InputType:       inputType,
		OutputDimension: c.outputDim,
	}, &resp)
	if err != nil {
		return nil, err
	}

	var vectors [][]float32
	switch {
	case len(resp.Results) > 0:
		for _, r := range resp.Results {
			vectors = append(vectors, r.Embeddings...)
		}
	case len(resp.Data) > 0:
		for _, group := range resp.Data {
			inner := group.Data
			sort.Slice(inner, func(i, j int) bool { return inner[i].Index < inner[j].Index })
			for _, d := range inner {
				vectors = append(vectors, d.Embedding)
			}
		}
	default:
		return nil, fmt.Errorf("contextualized response carried no embeddings")
	}

	if len(vectors) != want {
		return nil, fmt.Errorf("contextualized embedding count mismatch (got %d want %d)", len(vectors), want)
	}

	return &EmbedResult{
		Vectors:    vectors,
		Dimensions: dimsOf(vectors),
		Provider:   ProviderVoyage,
		Model:      c.model,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

// Health embeds a short probe text.
func (c *VoyageClient) Health(ctx context.Context) error {
	_, err := c.Embed(ctx, EmbedRequest{Texts: []string{"ping"}, InputType: InputQuery})
	return err
}

// Provider returns the provider name.
func (c *VoyageClient) Provider() string { return ProviderVoyage }

// Model returns the model name.
func (c *VoyageClient) Model() string { return c.model }

func dimsOf(vectors [][]float32) int {
	if len(vectors) == 0 {
		return 0
	}
	return len(vectors[0])
}
