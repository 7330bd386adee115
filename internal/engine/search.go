package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/memento-ai/memento/internal/memerr"
	"github.com/memento-ai/memento/internal/search"
)

// SearchRequest is one hybrid search call.
type SearchRequest struct {
	Query   string               `json:"query"`
	Filters search.Filters       `json:"filters,omitempty"`
	Options search.HybridOptions `json:"options,omitempty"`
}

// Search runs a hybrid search, served from the result cache when possible.
func (e *Engine) Search(ctx context.Context, projectID uuid.UUID, req SearchRequest) (*search.HybridResult, error) {
	release, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if req.Query == "" {
		return nil, memerr.Validation("query is required")
	}

	if cached := e.results.Get(ctx, projectID, req.Query, req.Filters, req.Options); cached != nil {
		return cached, nil
	}

	result, err := e.hybrid.Search(ctx, projectID, req.Query, req.Filters, req.Options)
	if err != nil {
		return nil, translate(err, "search")
	}
	e.results.Put(ctx, projectID, req.Query, req.Filters, req.Options, result)
	return result, nil
}
