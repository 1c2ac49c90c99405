// Package postgres implements the BeatHistoryRepository over a pgx
// connection pool, with environment-prefixed table names.
package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryConfig holds shared configuration for repository implementations.
type RepositoryConfig struct {
	Pool   *pgxpool.Pool
	Tables *TableNames
	Logger *slog.Logger
}

// TableNames holds dynamically prefixed table names.
type TableNames struct {
	BeatHistories string
}

// NewTableNames creates table names with the given prefix.
func NewTableNames(prefix string) *TableNames {
	return &TableNames{
		BeatHistories: fmt.Sprintf("%sbeat_histories", prefix),
	}
}

// CreateConnectionPool creates a pgx pool for the given connection string.
func CreateConnectionPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the history table when it does not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, tables *TableNames) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			beat_id    TEXT PRIMARY KEY,
			story_id   TEXT NOT NULL,
			versions   JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`, tables.BeatHistories)
	if _, err := pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	indexQuery := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s_story_idx ON %s (story_id)`,
		tables.BeatHistories, tables.BeatHistories,
	)
	if _, err := pool.Exec(ctx, indexQuery); err != nil {
		return fmt.Errorf("ensure story index: %w", err)
	}
	return nil
}
