package engine

import (
	"context"

	"github.com/memento-ai/memento/internal/commit"
)

// Commit runs an idempotent write through the coordinator and invalidates
// the project's cached search results. The caller's idempotency key is
// namespaced to this tool so the same raw key may be reused elsewhere.
func (e *Engine) Commit(ctx context.Context, req commit.Request) (*commit.Result, error) {
	release, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if req.IdempotencyKey != "" {
		req.IdempotencyKey = commit.NamespaceKey(commit.ToolMemoryCommit, req.IdempotencyKey)
	}
	result, err := e.coordinator.Commit(ctx, req)
	if err != nil {
		return nil, translate(err, "commit")
	}
	if !result.Deduped {
		e.results.InvalidateProject(ctx, req.ProjectID)
	}
	return result, nil
}
