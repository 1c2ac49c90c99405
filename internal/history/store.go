// Package history implements the append-only, capped version store for beat
// contents, fronted by a TTL cache over a document-oriented repository.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"inkwell/internal/domain"
	"inkwell/internal/domain/models"
	"inkwell/internal/domain/repositories"
)

const (
	// DefaultMaxVersions caps retained versions per beat.
	DefaultMaxVersions = 10
	// DefaultCacheTTL bounds how long a cached history is served.
	DefaultCacheTTL = 5 * time.Minute
)

// EqualityPolicy decides whether two content snapshots count as duplicates.
type EqualityPolicy func(a, b string) bool

// TrimmedEquality compares content with surrounding whitespace stripped.
func TrimmedEquality(a, b string) bool {
	return strings.TrimSpace(a) == strings.TrimSpace(b)
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// TagInsensitiveEquality compares content with markup tags stripped, so
// "Old <b>text</b>." equals "Old text.".
func TagInsensitiveEquality(a, b string) bool {
	return TrimmedEquality(tagPattern.ReplaceAllString(a, ""), tagPattern.ReplaceAllString(b, ""))
}

// SaveOption adjusts how SaveVersion stores a version.
type SaveOption func(*saveOptions)

type saveOptions struct {
	notCurrent bool
}

// NotCurrent stores the version without promoting it to the beat's current
// version; the existing current flag is left untouched.
func NotCurrent() SaveOption {
	return func(o *saveOptions) { o.notCurrent = true }
}

// Config tunes the store. Zero values fall back to the defaults.
type Config struct {
	MaxVersions int
	CacheTTL    time.Duration
	Equality    EqualityPolicy

	// Now overrides the clock, for tests.
	Now func() time.Time
}

func (c Config) normalized() Config {
	if c.MaxVersions <= 0 {
		c.MaxVersions = DefaultMaxVersions
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.Equality == nil {
		c.Equality = TrimmedEquality
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

type cacheEntry struct {
	history *models.BeatHistory
	expires time.Time
}

// Store manages beat version histories. Mutating calls invalidate the cache
// entry for the beat at dispatch time, before persistence completes, so
// concurrent reads never observe a stale-but-invalidated entry.
type Store struct {
	repo   repositories.BeatHistoryRepository
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewStore creates a version history store over the given repository.
func NewStore(repo repositories.BeatHistoryRepository, cfg Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		repo:   repo,
		cfg:    cfg.normalized(),
		logger: logger,
		cache:  make(map[string]cacheEntry),
	}
}

// SaveVersion appends a version to the beat's history, creating the history
// lazily. A version whose content equals the most recently stored version
// (under the configured equality policy) is suppressed and the existing id
// returned. The saved version becomes the beat's current version, demoting
// every other one, unless NotCurrent is passed. The history is pruned to
// the configured cap, oldest first.
func (s *Store) SaveVersion(ctx context.Context, beatID, storyID string, v models.BeatVersion, opts ...SaveOption) (string, error) {
	if beatID == "" {
		return "", fmt.Errorf("beat id is required: %w", domain.ErrValidation)
	}
	var o saveOptions
	for _, opt := range opts {
		opt(&o)
	}

	h, err := s.loadForWrite(ctx, beatID)
	if err != nil {
		return "", err
	}
	now := s.cfg.Now()
	if h == nil {
		h = &models.BeatHistory{BeatID: beatID, StoryID: storyID, CreatedAt: now}
	}

	if latest := latestVersion(h); latest != nil && s.cfg.Equality(latest.Content, v.Content) {
		s.logger.Debug("duplicate version suppressed", "beat_id", beatID, "version_id", latest.VersionID)
		return latest.VersionID, nil
	}

	if v.VersionID == "" {
		v.VersionID = uuid.NewString()
	}
	if v.GeneratedAt.IsZero() {
		v.GeneratedAt = now
	}
	if v.CharacterCount == 0 {
		v.CharacterCount = len([]rune(v.Content))
	}
	if o.notCurrent {
		v.IsCurrent = false
	} else {
		v.IsCurrent = true
		for i := range h.Versions {
			h.Versions[i].IsCurrent = false
		}
	}

	h.Versions = append(h.Versions, v)
	sort.SliceStable(h.Versions, func(i, j int) bool {
		return h.Versions[i].GeneratedAt.Before(h.Versions[j].GeneratedAt)
	})
	if excess := len(h.Versions) - s.cfg.MaxVersions; excess > 0 {
		h.Versions = append([]models.BeatVersion(nil), h.Versions[excess:]...)
	}
	h.UpdatedAt = now

	s.invalidate(beatID)
	if err := s.repo.Put(ctx, h); err != nil {
		return "", fmt.Errorf("persist history for beat %s: %w", beatID, err)
	}

	s.logger.Info("beat version saved",
		"beat_id", beatID,
		"version_id", v.VersionID,
		"action", v.Action,
		"versions", len(h.Versions),
	)
	return v.VersionID, nil
}

// GetHistory returns the beat's history, served from the TTL cache when
// fresh. A missing history is an empty result (nil, nil), not an error.
func (s *Store) GetHistory(ctx context.Context, beatID string) (*models.BeatHistory, error) {
	s.mu.Lock()
	if entry, ok := s.cache[beatID]; ok && s.cfg.Now().Before(entry.expires) {
		s.mu.Unlock()
		return entry.history.Clone(), nil
	}
	s.mu.Unlock()

	h, err := s.repo.Get(ctx, beatID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load history for beat %s: %w", beatID, err)
	}

	s.mu.Lock()
	s.cache[beatID] = cacheEntry{history: h.Clone(), expires: s.cfg.Now().Add(s.cfg.CacheTTL)}
	s.mu.Unlock()
	return h, nil
}

// SetCurrentVersion flips isCurrent exclusively onto the target version.
func (s *Store) SetCurrentVersion(ctx context.Context, beatID, versionID string) error {
	h, err := s.loadForWrite(ctx, beatID)
	if err != nil {
		return err
	}
	if h == nil || h.FindVersion(versionID) == nil {
		return fmt.Errorf("version %s for beat %s: %w", versionID, beatID, domain.ErrVersionNotFound)
	}
	for i := range h.Versions {
		h.Versions[i].IsCurrent = h.Versions[i].VersionID == versionID
	}
	h.UpdatedAt = s.cfg.Now()

	s.invalidate(beatID)
	if err := s.repo.Put(ctx, h); err != nil {
		return fmt.Errorf("persist history for beat %s: %w", beatID, err)
	}
	return nil
}

// DeleteHistory removes a beat's history. Deleting a missing history is a
// no-op.
func (s *Store) DeleteHistory(ctx context.Context, beatID string) error {
	s.invalidate(beatID)
	if err := s.repo.Remove(ctx, beatID); err != nil && !isNotFound(err) {
		return fmt.Errorf("delete history for beat %s: %w", beatID, err)
	}
	return nil
}

// DeleteAllForStory cascades history deletion for every beat of a story.
func (s *Store) DeleteAllForStory(ctx context.Context, storyID string) error {
	histories, err := s.repo.AllByStory(ctx, storyID)
	if err != nil {
		return fmt.Errorf("list histories for story %s: %w", storyID, err)
	}
	for _, h := range histories {
		if err := s.DeleteHistory(ctx, h.BeatID); err != nil {
			return err
		}
	}
	return nil
}

// DeleteAll removes every stored history.
func (s *Store) DeleteAll(ctx context.Context) error {
	histories, err := s.repo.All(ctx)
	if err != nil {
		return fmt.Errorf("list histories: %w", err)
	}
	for _, h := range histories {
		if err := s.DeleteHistory(ctx, h.BeatID); err != nil {
			return err
		}
	}
	return nil
}

// loadForWrite reads the authoritative copy, bypassing the cache.
func (s *Store) loadForWrite(ctx context.Context, beatID string) (*models.BeatHistory, error) {
	h, err := s.repo.Get(ctx, beatID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load history for beat %s: %w", beatID, err)
	}
	return h, nil
}

func (s *Store) invalidate(beatID string) {
	s.mu.Lock()
	delete(s.cache, beatID)
	s.mu.Unlock()
}

func latestVersion(h *models.BeatHistory) *models.BeatVersion {
	if len(h.Versions) == 0 {
		return nil
	}
	latest := &h.Versions[0]
	for i := range h.Versions {
		if !h.Versions[i].GeneratedAt.Before(latest.GeneratedAt) {
			latest = &h.Versions[i]
		}
	}
	return latest
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrHistoryNotFound) || errors.Is(err, domain.ErrNotFound)
}
