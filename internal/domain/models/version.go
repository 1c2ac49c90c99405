package models

import "time"

// VersionAction records how a stored version came to exist.
type VersionAction string

const (
	ActionGenerate VersionAction = "generate"
	ActionRewrite  VersionAction = "rewrite"
)

// BeatVersion is one retained snapshot of a beat's generated content.
type BeatVersion struct {
	VersionID          string        `json:"version_id"`
	Content            string        `json:"content"`
	Prompt             string        `json:"prompt"`
	Model              string        `json:"model"`
	BeatType           string        `json:"beat_type"`
	WordCount          int           `json:"word_count"`
	GeneratedAt        time.Time     `json:"generated_at"`
	CharacterCount     int           `json:"character_count"`
	IsCurrent          bool          `json:"is_current"`
	Action             VersionAction `json:"action"`
	RewriteInstruction string        `json:"rewrite_instruction,omitempty"`
	ExistingText       string        `json:"existing_text,omitempty"`
}

// BeatHistory is the per-beat version history document. BeatID is the join
// key; StoryID enables bulk cascade delete when a story is deleted.
type BeatHistory struct {
	BeatID    string        `json:"beat_id"`
	StoryID   string        `json:"story_id"`
	Versions  []BeatVersion `json:"versions"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Clone returns a deep copy so cached histories are never aliased by callers.
func (h *BeatHistory) Clone() *BeatHistory {
	if h == nil {
		return nil
	}
	c := *h
	c.Versions = make([]BeatVersion, len(h.Versions))
	copy(c.Versions, h.Versions)
	return &c
}

// CurrentVersion returns the version flagged current, or nil.
func (h *BeatHistory) CurrentVersion() *BeatVersion {
	for i := range h.Versions {
		if h.Versions[i].IsCurrent {
			return &h.Versions[i]
		}
	}
	return nil
}

// FindVersion returns the version with the given id, or nil.
func (h *BeatHistory) FindVersion(versionID string) *BeatVersion {
	for i := range h.Versions {
		if h.Versions[i].VersionID == versionID {
			return &h.Versions[i]
		}
	}
	return nil
}
