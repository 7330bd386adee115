// Package main provides the API router setup.
package main

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/memento-ai/memento/cmd/memento-api/handlers"
	"github.com/memento-ai/memento/internal/cache"
	"github.com/memento-ai/memento/internal/commit"
	"github.com/memento-ai/memento/internal/config"
	"github.com/memento-ai/memento/internal/engine"
	"github.com/memento-ai/memento/internal/index"
	"github.com/memento-ai/memento/internal/observability"
	"github.com/memento-ai/memento/internal/outbox"
	"github.com/memento-ai/memento/internal/search"
)

// NewRouter creates the main API router with all routes configured.
func NewRouter(logger *observability.Logger, cfg *config.Config, db *sql.DB) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(cfg.Server.ReadTimeout))

	eng := buildEngine(logger, cfg, db)
	h := handlers.New(logger, eng)

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/projects/resolve", h.ResolveProject)

		r.Route("/projects/{projectID}", func(r chi.Router) {
			r.Post("/commit", h.Commit)
			r.Post("/search", h.Search)
			r.Post("/canonical", h.CanonicalUpsert)
			r.Get("/canonical", h.GetCanonical)
			r.Get("/context-pack", h.ContextPack)
			r.Get("/health", h.ProjectHealth)

			r.Route("/items/{itemID}", func(r chi.Router) {
				r.Get("/", h.GetItem)
				r.Get("/history", h.History)
				r.Get("/diff", h.Diff)
				r.Get("/outline", h.Outline)
				r.Get("/sections/{anchor}", h.GetSection)
				r.Post("/pin", h.Pin)
				r.Post("/unpin", h.Unpin)
				r.Post("/archive", h.Archive)
				r.Post("/links", h.Link)
			})

			r.Route("/profiles", func(r chi.Router) {
				r.Get("/", h.ListProfiles)
				r.Post("/", h.CreateProfile)
				r.Post("/{profileID}/activate", h.ActivateProfile)
				r.Delete("/{profileID}", h.DeleteProfile)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Post("/reindex", h.AdminReindex)
				r.Post("/reingest", h.AdminReingest)
			})
		})
	})

	return r
}

// buildEngine wires the engine's collaborators from configuration.
func buildEngine(logger *observability.Logger, cfg *config.Config, db *sql.DB) *engine.Engine {
	var cacheClient cache.Client
	if cfg.Cache.Driver == "redis" {
		redisClient, err := cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			PoolSize: cfg.Cache.Redis.PoolSize,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("Redis unavailable, using in-memory cache")
		} else {
			cacheClient = redisClient
		}
	}
	if cacheClient == nil {
		cacheClient = cache.NewMemoryClient(cfg.Cache.MaxEntries)
	}

	var results *search.ResultCache
	if cfg.Search.CacheResults {
		results = search.NewResultCache(cacheClient, logger, cfg.Cache.TTL)
	}

	caps := search.NewCaps(db, logger, cfg.Search.BM25CapsTTL)
	lexical := search.NewLexical(db, caps, logger)
	semantic := search.NewSemantic(db, logger, cfg.Embedder, nil)
	hybrid := search.NewHybrid(lexical, semantic, logger)

	return engine.New(engine.Params{
		DB:          db,
		Log:         logger,
		Config:      cfg,
		Coordinator: commit.NewCoordinator(db, logger),
		Hybrid:      hybrid,
		Results:     results,
		Outbox:      outbox.NewStore(db),
		Indexes:     index.NewManager(db, logger, cfg.Search.SkipIndexBuild),
	})
}
