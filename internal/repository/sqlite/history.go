// Package sqlite provides a local-first BeatHistoryRepository on an embedded
// SQLite database (pure-Go driver, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"inkwell/internal/domain"
	"inkwell/internal/domain/models"
	"inkwell/internal/domain/repositories"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS beat_histories (
	beat_id    TEXT PRIMARY KEY,
	story_id   TEXT NOT NULL,
	versions   TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS beat_histories_story_idx ON beat_histories (story_id);
`

// HistoryRepository stores history documents in a SQLite database.
type HistoryRepository struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path and bootstraps the
// schema.
func Open(path string) (*HistoryRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}
	return &HistoryRepository{db: db}, nil
}

// New wraps an existing database handle; the schema must already exist.
func New(db *sql.DB) (*HistoryRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &HistoryRepository{db: db}, nil
}

// Close releases the underlying database handle.
func (r *HistoryRepository) Close() error {
	return r.db.Close()
}

var _ repositories.BeatHistoryRepository = (*HistoryRepository)(nil)

func (r *HistoryRepository) Get(ctx context.Context, beatID string) (*models.BeatHistory, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT beat_id, story_id, versions, created_at, updated_at FROM beat_histories WHERE beat_id = ?`,
		beatID)
	h, err := scanHistory(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("history for beat %s: %w", beatID, domain.ErrHistoryNotFound)
		}
		return nil, fmt.Errorf("get history: %w", err)
	}
	return h, nil
}

func (r *HistoryRepository) Put(ctx context.Context, history *models.BeatHistory) error {
	versions, err := json.Marshal(history.Versions)
	if err != nil {
		return fmt.Errorf("encode versions for beat %s: %w", history.BeatID, err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO beat_histories (beat_id, story_id, versions, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (beat_id) DO UPDATE
		SET story_id = excluded.story_id,
		    versions = excluded.versions,
		    updated_at = excluded.updated_at`,
		history.BeatID,
		history.StoryID,
		string(versions),
		history.CreatedAt.UTC().Format(time.RFC3339Nano),
		history.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put history: %w", err)
	}
	return nil
}

func (r *HistoryRepository) Remove(ctx context.Context, beatID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM beat_histories WHERE beat_id = ?`, beatID); err != nil {
		return fmt.Errorf("remove history: %w", err)
	}
	return nil
}

func (r *HistoryRepository) AllByStory(ctx context.Context, storyID string) ([]*models.BeatHistory, error) {
	return r.list(ctx,
		`SELECT beat_id, story_id, versions, created_at, updated_at FROM beat_histories WHERE story_id = ?`,
		storyID)
}

func (r *HistoryRepository) All(ctx context.Context) ([]*models.BeatHistory, error) {
	return r.list(ctx,
		`SELECT beat_id, story_id, versions, created_at, updated_at FROM beat_histories`)
}

func (r *HistoryRepository) list(ctx context.Context, query string, args ...any) ([]*models.BeatHistory, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list histories: %w", err)
	}
	defer rows.Close()

	var out []*models.BeatHistory
	for rows.Next() {
		h, err := scanHistory(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate histories: %w", err)
	}
	return out, nil
}

func scanHistory(scan func(...any) error) (*models.BeatHistory, error) {
	h := &models.BeatHistory{}
	var versions, createdAt, updatedAt string
	if err := scan(&h.BeatID, &h.StoryID, &versions, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(versions), &h.Versions); err != nil {
		return nil, fmt.Errorf("decode versions for beat %s: %w", h.BeatID, err)
	}
	h.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	h.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return h, nil
}
