// Package memory provides a map-backed BeatHistoryRepository used by tests
// and the demo entrypoint.
package memory

import (
	"context"
	"fmt"
	"sync"

	"inkwell/internal/domain"
	"inkwell/internal/domain/models"
	"inkwell/internal/domain/repositories"
)

// HistoryRepository stores history documents in process memory.
type HistoryRepository struct {
	mu   sync.RWMutex
	docs map[string]*models.BeatHistory
}

// NewHistoryRepository creates an empty in-memory repository.
func NewHistoryRepository() repositories.BeatHistoryRepository {
	return &HistoryRepository{docs: make(map[string]*models.BeatHistory)}
}

func (r *HistoryRepository) Get(ctx context.Context, beatID string) (*models.BeatHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.docs[beatID]
	if !ok {
		return nil, fmt.Errorf("history for beat %s: %w", beatID, domain.ErrHistoryNotFound)
	}
	return h.Clone(), nil
}

func (r *HistoryRepository) Put(ctx context.Context, history *models.BeatHistory) error {
	if history == nil || history.BeatID == "" {
		return fmt.Errorf("history document requires a beat id: %w", domain.ErrValidation)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[history.BeatID] = history.Clone()
	return nil
}

func (r *HistoryRepository) Remove(ctx context.Context, beatID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, beatID)
	return nil
}

func (r *HistoryRepository) AllByStory(ctx context.Context, storyID string) ([]*models.BeatHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.BeatHistory
	for _, h := range r.docs {
		if h.StoryID == storyID {
			out = append(out, h.Clone())
		}
	}
	return out, nil
}

func (r *HistoryRepository) All(ctx context.Context) ([]*models.BeatHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.BeatHistory, 0, len(r.docs))
	for _, h := range r.docs {
		out = append(out, h.Clone())
	}
	return out, nil
}
