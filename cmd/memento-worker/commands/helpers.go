package commands

import (
	"database/sql"
	"fmt"

	"github.com/memento-ai/memento/internal/config"
	"github.com/memento-ai/memento/internal/observability"
	"github.com/memento-ai/memento/internal/storage"
)

// setup loads configuration, builds the logger, and opens the database.
func setup() (*config.Config, *observability.Logger, *sql.DB, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	level := cfg.Observability.LogLevel
	if verbose {
		level = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:       level,
		Format:      cfg.Observability.LogFormat,
		ServiceName: "memento-worker",
	})

	db, err := storage.Open(cfg.Database)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return cfg, logger, db, nil
}
