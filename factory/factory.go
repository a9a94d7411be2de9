package factory

import (
	"context"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/mahino/scalar"
	"github.com/mahino/scalar/internal"
)

// Components bundles everything a caller needs to run the scaling
// engine: the pipeline itself plus the stores it persists through.
type Components struct {
	Engine  scalar.Engine
	Rules   scalar.RuleStore
	History scalar.HistoryStore
}

// Build creates the engine and its stores from configuration. This is
// the primary way for external projects to wire the library.
//
// With the file backend pool may be nil. With the postgres backend the
// pool is required and the configured tables must already exist (see
// cmd/tools init-db).
//
// Usage:
//
//	config := scalar.DefaultConfig()
//	components, err := factory.Build(context.Background(), config, nil, logger)
//	if err != nil {
//	    // handle error
//	}
//	entities, err := components.Engine.Analyze(ctx, payload)
func Build(ctx context.Context, config *scalar.Config, pool *pgxpool.Pool, logger *zap.SugaredLogger) (*Components, error) {
	if config == nil {
		config = scalar.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.S()
	}

	var (
		rules   scalar.RuleStore
		history scalar.HistoryStore
	)
	switch config.Storage.Backend {
	case "postgres":
		if pool == nil {
			return nil, fmt.Errorf("postgres backend requires a connection pool")
		}
		if err := verifyTables(ctx, pool, config.Database); err != nil {
			return nil, err
		}
		store := internal.NewPostgresStore(pool, config.Database, config.Storage, logger)
		rules, history = store, store
	default:
		store, err := internal.NewFileStore(config.Storage, logger)
		if err != nil {
			return nil, err
		}
		rules, history = store, store
	}

	return &Components{
		Engine:  internal.NewPipeline(config, history, logger),
		Rules:   rules,
		History: history,
	}, nil
}

// verifyTables confirms the rule-set and history tables exist before
// the first request hits them.
func verifyTables(ctx context.Context, pool *pgxpool.Pool, dbCfg scalar.DatabaseConfig) error {
	rows, err := pool.Query(ctx, `SELECT table_name FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE';`)
	if err != nil {
		return fmt.Errorf("failed to verify database connection: %w", err)
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, tableName)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating rows: %w", err)
	}

	for _, required := range []string{dbCfg.RuleSetTable, dbCfg.RuleSetTable + "_revisions", dbCfg.HistoryTable} {
		if !slices.Contains(tables, required) {
			return fmt.Errorf("required table %q is missing in the database (run cmd/tools init-db)", required)
		}
	}
	return nil
}
