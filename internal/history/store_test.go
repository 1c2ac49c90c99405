package history

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"inkwell/internal/domain"
	"inkwell/internal/domain/models"
	"inkwell/internal/repository/memory"
)

func newTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	return NewStore(memory.NewHistoryRepository(), cfg, nil)
}

func TestSaveVersionCreatesHistoryLazily(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, Config{})

	id, err := store.SaveVersion(ctx, "beat-1", "story-1", models.BeatVersion{
		Content: "First draft.",
		Action:  models.ActionGenerate,
	})
	if err != nil {
		t.Fatalf("SaveVersion error = %v", err)
	}
	if id == "" {
		t.Fatal("expected a version id")
	}

	h, err := store.GetHistory(ctx, "beat-1")
	if err != nil {
		t.Fatalf("GetHistory error = %v", err)
	}
	if h == nil || len(h.Versions) != 1 {
		t.Fatalf("unexpected history %+v", h)
	}
	v := h.Versions[0]
	if v.VersionID != id {
		t.Errorf("version id = %q, want %q", v.VersionID, id)
	}
	if v.GeneratedAt.IsZero() {
		t.Error("generated at not stamped")
	}
	if v.CharacterCount != len("First draft.") {
		t.Errorf("character count = %d", v.CharacterCount)
	}
	if h.StoryID != "story-1" {
		t.Errorf("story id = %q", h.StoryID)
	}
}

func TestSaveVersionPrunesOldestBeyondCap(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := newTestStore(t, Config{
		MaxVersions: 3,
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	})

	for i := 1; i <= 5; i++ {
		_, err := store.SaveVersion(ctx, "beat-1", "story-1", models.BeatVersion{
			Content: fmt.Sprintf("Draft number %d.", i),
		})
		if err != nil {
			t.Fatalf("SaveVersion %d error = %v", i, err)
		}
	}

	h, err := store.GetHistory(ctx, "beat-1")
	if err != nil {
		t.Fatalf("GetHistory error = %v", err)
	}
	if len(h.Versions) != 3 {
		t.Fatalf("versions = %d, want 3", len(h.Versions))
	}
	if h.Versions[0].Content != "Draft number 3." {
		t.Errorf("oldest kept = %q, want draft 3", h.Versions[0].Content)
	}
	if h.Versions[2].Content != "Draft number 5." {
		t.Errorf("newest = %q, want draft 5", h.Versions[2].Content)
	}
}

func TestSaveVersionSuppressesDuplicates(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, Config{})

	first, err := store.SaveVersion(ctx, "beat-1", "story-1", models.BeatVersion{Content: "Same text."})
	if err != nil {
		t.Fatalf("SaveVersion error = %v", err)
	}
	// Whitespace differences do not produce a new version.
	second, err := store.SaveVersion(ctx, "beat-1", "story-1", models.BeatVersion{Content: "  Same text. \n"})
	if err != nil {
		t.Fatalf("SaveVersion error = %v", err)
	}
	if second != first {
		t.Errorf("duplicate save returned %q, want existing id %q", second, first)
	}

	h, _ := store.GetHistory(ctx, "beat-1")
	if len(h.Versions) != 1 {
		t.Errorf("versions = %d, want 1", len(h.Versions))
	}
}

func TestTagInsensitiveEquality(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, Config{Equality: TagInsensitiveEquality})

	first, err := store.SaveVersion(ctx, "beat-1", "s", models.BeatVersion{Content: "Old <b>text</b>."})
	if err != nil {
		t.Fatalf("SaveVersion error = %v", err)
	}
	second, err := store.SaveVersion(ctx, "beat-1", "s", models.BeatVersion{Content: "Old text."})
	if err != nil {
		t.Fatalf("SaveVersion error = %v", err)
	}
	if second != first {
		t.Error("markup-only difference should be suppressed")
	}
}

func TestSetCurrentVersionIsExclusive(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := newTestStore(t, Config{Now: func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}})

	first, _ := store.SaveVersion(ctx, "beat-1", "s", models.BeatVersion{Content: "One."})
	second, _ := store.SaveVersion(ctx, "beat-1", "s", models.BeatVersion{Content: "Two."})

	h, _ := store.GetHistory(ctx, "beat-1")
	if h.FindVersion(first).IsCurrent {
		t.Error("first version still current after second save")
	}
	if !h.FindVersion(second).IsCurrent {
		t.Error("second version not current")
	}

	if err := store.SetCurrentVersion(ctx, "beat-1", first); err != nil {
		t.Fatalf("SetCurrentVersion error = %v", err)
	}
	h, _ = store.GetHistory(ctx, "beat-1")
	if !h.FindVersion(first).IsCurrent || h.FindVersion(second).IsCurrent {
		t.Error("current flag not exclusive after restore")
	}
}

func TestSaveVersionDefaultsToCurrent(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := newTestStore(t, Config{Now: func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}})

	first, _ := store.SaveVersion(ctx, "beat-1", "s", models.BeatVersion{Content: "One."})
	_, _ = store.SaveVersion(ctx, "beat-1", "s", models.BeatVersion{Content: "Two."})

	// A restore flips current back onto the first version. A later plain
	// save must take the flag, not leave it on content it no longer matches.
	if err := store.SetCurrentVersion(ctx, "beat-1", first); err != nil {
		t.Fatalf("SetCurrentVersion error = %v", err)
	}
	third, err := store.SaveVersion(ctx, "beat-1", "s", models.BeatVersion{Content: "Three."})
	if err != nil {
		t.Fatalf("SaveVersion error = %v", err)
	}

	h, _ := store.GetHistory(ctx, "beat-1")
	for _, v := range h.Versions {
		if v.VersionID == third && !v.IsCurrent {
			t.Error("saved version not current")
		}
		if v.VersionID != third && v.IsCurrent {
			t.Errorf("version %s still current after save", v.VersionID)
		}
	}
}

func TestSaveVersionNotCurrentLeavesFlags(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := newTestStore(t, Config{Now: func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}})

	first, _ := store.SaveVersion(ctx, "beat-1", "s", models.BeatVersion{Content: "One."})
	second, _ := store.SaveVersion(ctx, "beat-1", "s", models.BeatVersion{Content: "Two."}, NotCurrent())

	h, _ := store.GetHistory(ctx, "beat-1")
	if !h.FindVersion(first).IsCurrent {
		t.Error("existing current version demoted by a not-current save")
	}
	if h.FindVersion(second).IsCurrent {
		t.Error("not-current save flagged current")
	}
}

func TestSetCurrentVersionUnknown(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, Config{})
	_, _ = store.SaveVersion(ctx, "beat-1", "s", models.BeatVersion{Content: "One."})

	err := store.SetCurrentVersion(ctx, "beat-1", "nope")
	if !errors.Is(err, domain.ErrVersionNotFound) {
		t.Errorf("error = %v, want ErrVersionNotFound", err)
	}
	err = store.SetCurrentVersion(ctx, "missing-beat", "nope")
	if !errors.Is(err, domain.ErrVersionNotFound) {
		t.Errorf("error = %v, want ErrVersionNotFound", err)
	}
}

func TestGetHistoryMissingIsNil(t *testing.T) {
	store := newTestStore(t, Config{})
	h, err := store.GetHistory(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("GetHistory error = %v", err)
	}
	if h != nil {
		t.Errorf("history = %+v, want nil", h)
	}
}

func TestDeleteHistoryIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, Config{})
	_, _ = store.SaveVersion(ctx, "beat-1", "s", models.BeatVersion{Content: "One."})

	if err := store.DeleteHistory(ctx, "beat-1"); err != nil {
		t.Fatalf("DeleteHistory error = %v", err)
	}
	if err := store.DeleteHistory(ctx, "beat-1"); err != nil {
		t.Fatalf("second DeleteHistory error = %v", err)
	}
	if h, _ := store.GetHistory(ctx, "beat-1"); h != nil {
		t.Error("history still present after delete")
	}
}

func TestDeleteAllForStory(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, Config{})
	_, _ = store.SaveVersion(ctx, "beat-1", "story-1", models.BeatVersion{Content: "One."})
	_, _ = store.SaveVersion(ctx, "beat-2", "story-1", models.BeatVersion{Content: "Two."})
	_, _ = store.SaveVersion(ctx, "beat-3", "story-2", models.BeatVersion{Content: "Three."})

	if err := store.DeleteAllForStory(ctx, "story-1"); err != nil {
		t.Fatalf("DeleteAllForStory error = %v", err)
	}
	if h, _ := store.GetHistory(ctx, "beat-1"); h != nil {
		t.Error("beat-1 history survived story delete")
	}
	if h, _ := store.GetHistory(ctx, "beat-3"); h == nil {
		t.Error("beat-3 history from another story was deleted")
	}
}

func TestWriteInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, Config{CacheTTL: time.Hour})

	_, _ = store.SaveVersion(ctx, "beat-1", "s", models.BeatVersion{Content: "One."})
	if h, _ := store.GetHistory(ctx, "beat-1"); len(h.Versions) != 1 {
		t.Fatalf("versions = %d, want 1", len(h.Versions))
	}

	// A write after the cached read must be visible immediately.
	_, _ = store.SaveVersion(ctx, "beat-1", "s", models.BeatVersion{Content: "Two."})
	h, _ := store.GetHistory(ctx, "beat-1")
	if len(h.Versions) != 2 {
		t.Errorf("versions = %d, want 2 after cache invalidation", len(h.Versions))
	}
}

func TestCachedHistoryIsACopy(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, Config{CacheTTL: time.Hour})
	_, _ = store.SaveVersion(ctx, "beat-1", "s", models.BeatVersion{Content: "One."})

	h, _ := store.GetHistory(ctx, "beat-1")
	h.Versions[0].Content = "mutated"

	again, _ := store.GetHistory(ctx, "beat-1")
	if again.Versions[0].Content != "One." {
		t.Error("caller mutation leaked into the cache")
	}
}

func TestSaveVersionRequiresBeatID(t *testing.T) {
	_, err := newTestStore(t, Config{}).SaveVersion(context.Background(), "", "s", models.BeatVersion{Content: "x"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
}
