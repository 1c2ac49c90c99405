package repositories

import (
	"context"

	"inkwell/internal/domain/models"
)

// BeatHistoryRepository is the document-oriented persistence contract for
// beat version histories. Implementations are keyed by beat id and must
// support story-scoped listing for cascade deletes.
//
// Get returns domain.ErrHistoryNotFound when no document exists; Remove of a
// missing document is a no-op.
type BeatHistoryRepository interface {
	// Get retrieves the history document for a beat.
	Get(ctx context.Context, beatID string) (*models.BeatHistory, error)

	// Put creates or replaces a history document.
	Put(ctx context.Context, history *models.BeatHistory) error

	// Remove deletes the history document for a beat.
	Remove(ctx context.Context, beatID string) error

	// AllByStory lists every history document belonging to a story.
	AllByStory(ctx context.Context, storyID string) ([]*models.BeatHistory, error)

	// All lists every stored history document.
	All(ctx context.Context) ([]*models.BeatHistory, error)
}
