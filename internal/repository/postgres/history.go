package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"inkwell/internal/domain"
	"inkwell/internal/domain/models"
	"inkwell/internal/domain/repositories"
)

// PostgresHistoryRepository implements the BeatHistoryRepository interface.
type PostgresHistoryRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewHistoryRepository creates a new postgres-backed history repository.
func NewHistoryRepository(config *RepositoryConfig) repositories.BeatHistoryRepository {
	return &PostgresHistoryRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

func (r *PostgresHistoryRepository) Get(ctx context.Context, beatID string) (*models.BeatHistory, error) {
	query := fmt.Sprintf(`
		SELECT beat_id, story_id, versions, created_at, updated_at
		FROM %s
		WHERE beat_id = $1
	`, r.tables.BeatHistories)

	h := &models.BeatHistory{}
	var versions []byte
	err := r.pool.QueryRow(ctx, query, beatID).
		Scan(&h.BeatID, &h.StoryID, &versions, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("history for beat %s: %w", beatID, domain.ErrHistoryNotFound)
		}
		return nil, fmt.Errorf("get history: %w", err)
	}
	if err := json.Unmarshal(versions, &h.Versions); err != nil {
		return nil, fmt.Errorf("decode versions for beat %s: %w", beatID, err)
	}
	return h, nil
}

func (r *PostgresHistoryRepository) Put(ctx context.Context, history *models.BeatHistory) error {
	versions, err := json.Marshal(history.Versions)
	if err != nil {
		return fmt.Errorf("encode versions for beat %s: %w", history.BeatID, err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (beat_id, story_id, versions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (beat_id) DO UPDATE
		SET story_id = EXCLUDED.story_id,
		    versions = EXCLUDED.versions,
		    updated_at = EXCLUDED.updated_at
	`, r.tables.BeatHistories)

	if _, err := r.pool.Exec(ctx, query,
		history.BeatID,
		history.StoryID,
		versions,
		history.CreatedAt,
		history.UpdatedAt,
	); err != nil {
		return fmt.Errorf("put history: %w", err)
	}
	return nil
}

func (r *PostgresHistoryRepository) Remove(ctx context.Context, beatID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE beat_id = $1`, r.tables.BeatHistories)
	if _, err := r.pool.Exec(ctx, query, beatID); err != nil {
		return fmt.Errorf("remove history: %w", err)
	}
	return nil
}

func (r *PostgresHistoryRepository) AllByStory(ctx context.Context, storyID string) ([]*models.BeatHistory, error) {
	query := fmt.Sprintf(`
		SELECT beat_id, story_id, versions, created_at, updated_at
		FROM %s
		WHERE story_id = $1
	`, r.tables.BeatHistories)
	return r.list(ctx, query, storyID)
}

func (r *PostgresHistoryRepository) All(ctx context.Context) ([]*models.BeatHistory, error) {
	query := fmt.Sprintf(`
		SELECT beat_id, story_id, versions, created_at, updated_at
		FROM %s
	`, r.tables.BeatHistories)
	return r.list(ctx, query)
}

func (r *PostgresHistoryRepository) list(ctx context.Context, query string, args ...any) ([]*models.BeatHistory, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list histories: %w", err)
	}
	defer rows.Close()

	var out []*models.BeatHistory
	for rows.Next() {
		h := &models.BeatHistory{}
		var versions []byte
		if err := rows.Scan(&h.BeatID, &h.StoryID, &versions, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if err := json.Unmarshal(versions, &h.Versions); err != nil {
			return nil, fmt.Errorf("decode versions for beat %s: %w", h.BeatID, err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate histories: %w", err)
	}
	return out, nil
}
