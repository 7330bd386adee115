// Package engine exposes the typed operations behind the tool facade:
// reads, commits, search, canonical document helpers, and admin actions.
package engine

import (
	"context"
	"database/sql"
	"errors"

	"golang.org/x/sync/semaphore"

	"github.com/memento-ai/memento/internal/commit"
	"github.com/memento-ai/memento/internal/config"
	"github.com/memento-ai/memento/internal/embedding"
	"github.com/memento-ai/memento/internal/index"
	"github.com/memento-ai/memento/internal/memerr"
	"github.com/memento-ai/memento/internal/observability"
	"github.com/memento-ai/memento/internal/outbox"
	"github.com/memento-ai/memento/internal/search"
	"github.com/memento-ai/memento/internal/storage"
)

// Engine wires the storage, commit, search, and outbox layers into the
// operation set the tool facade calls.
type Engine struct {
	db          *sql.DB
	repos       *storage.Repositories
	log         *observability.Logger
	cfg         *config.Config
	coordinator *commit.Coordinator
	hybrid      *search.Hybrid
	results     *search.ResultCache
	outbox      *outbox.Store
	indexes     *index.Manager
	embedders   search.EmbedderFactory

	// sem caps concurrent operations when configured; nil means unbounded.
	sem *semaphore.Weighted
}

// Params collects the engine's collaborators.
type Params struct {
	DB          *sql.DB
	Log         *observability.Logger
	Config      *config.Config
	Coordinator *commit.Coordinator
	Hybrid      *search.Hybrid
	Results     *search.ResultCache
	Outbox      *outbox.Store
	Indexes     *index.Manager
	Embedders   search.EmbedderFactory
}

// New creates the engine.
func New(p Params) *Engine {
	e := &Engine{
		db:          p.DB,
		repos:       storage.NewRepositories(p.DB),
		log:         p.Log,
		cfg:         p.Config,
		coordinator: p.Coordinator,
		hybrid:      p.Hybrid,
		results:     p.Results,
		outbox:      p.Outbox,
		indexes:     p.Indexes,
		embedders:   p.Embedders,
	}
	if e.embedders == nil {
		e.embedders = embedding.NewFromProfile
	}
	if p.Config != nil && p.Config.Engine.MaxConcurrentOps > 0 {
		e.sem = semaphore.NewWeighted(int64(p.Config.Engine.MaxConcurrentOps))
	}
	return e
}

// acquire takes a semaphore slot when the engine is bounded. The returned
// release must be called on every exit path.
func (e *Engine) acquire(ctx context.Context) (func(), error) {
	if e.sem == nil {
		return func() {}, nil
	}
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, memerr.Unavailable("engine at capacity", err)
	}
	return func() { e.sem.Release(1) }, nil
}

func isNotFound(err error) bool { return errors.Is(err, storage.ErrNotFound) }

func isConflict(err error) bool { return errors.Is(err, storage.ErrConflict) }

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// translate maps storage sentinels onto the shared error taxonomy. Errors
// that already carry a kind pass through.
func translate(err error, message string) error {
	if err == nil {
		return nil
	}
	var kinded *memerr.Error
	if errors.As(err, &kinded) {
		return err
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return memerr.NotFound(message)
	case errors.Is(err, storage.ErrConflict):
		return memerr.Conflict(message)
	case errors.Is(err, storage.ErrNoProject):
		return memerr.Validation("project_id is required")
	}
	return memerr.Internal(message, err)
}
