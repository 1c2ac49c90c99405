package schema

import (
	"time"
)

// NodeType identifies the structural role of a node in the document tree.
type NodeType string

const (
	TypeDoc        NodeType = "doc"
	TypeParagraph  NodeType = "paragraph"
	TypeBulletList NodeType = "bulletList"
	TypeListItem   NodeType = "listItem"
	TypeImage      NodeType = "image"
	TypeBeat       NodeType = "beat"
	TypeBeatEnd    NodeType = "beatEnd"
)

// BeatType controls how much surrounding context is sent to generation.
type BeatType string

const (
	BeatTypeStory BeatType = "story"
	BeatTypeScene BeatType = "scene"
)

// Attrs is the attribute payload of a node. Attribute structs are treated as
// immutable once attached to a node; mutations go through Clone.
type Attrs interface {
	Clone() Attrs
}

// BeatAttrs holds the full attribute set of a beat block.
type BeatAttrs struct {
	ID               string
	Prompt           string
	GeneratedContent string
	IsGenerating     bool
	IsCollapsed      bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
	WordCount        int
	BeatType         BeatType
	Model            string
	CurrentVersionID string // empty = no restore has occurred
	HasHistory       bool
}

// Clone returns a copy of the attrs.
func (a *BeatAttrs) Clone() Attrs {
	c := *a
	return &c
}

// BeatEndAttrs marks the boundary between generated and pre-existing content
// for the owning beat.
type BeatEndAttrs struct {
	BeatID string
}

func (a *BeatEndAttrs) Clone() Attrs {
	c := *a
	return &c
}

// ImageAttrs holds the attributes of an image block.
type ImageAttrs struct {
	ImageID string
	Src     string
	Alt     string
}

func (a *ImageAttrs) Clone() Attrs {
	c := *a
	return &c
}
