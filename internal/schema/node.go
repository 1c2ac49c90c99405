package schema

import (
	"strings"
	"unicode/utf8"
)

// Node is a single node in the document tree. Nodes are immutable: editing
// operations build new nodes along the changed path and share the rest.
type Node struct {
	Type     NodeType
	Text     string // textblocks (paragraph, listItem) only
	Attrs    Attrs
	Children []*Node
}

// NewDoc builds a document root from top-level blocks.
func NewDoc(blocks ...*Node) *Node {
	return &Node{Type: TypeDoc, Children: blocks}
}

// NewParagraph builds a paragraph textblock.
func NewParagraph(text string) *Node {
	return &Node{Type: TypeParagraph, Text: text}
}

// NewListItem builds a list item textblock.
func NewListItem(text string) *Node {
	return &Node{Type: TypeListItem, Text: text}
}

// NewBulletList builds a bullet list from items.
func NewBulletList(items ...*Node) *Node {
	return &Node{Type: TypeBulletList, Children: items}
}

// NewBeat builds an atomic beat block.
func NewBeat(attrs *BeatAttrs) *Node {
	return &Node{Type: TypeBeat, Attrs: attrs}
}

// NewBeatEnd builds the invisible end-marker block for a beat.
func NewBeatEnd(beatID string) *Node {
	return &Node{Type: TypeBeatEnd, Attrs: &BeatEndAttrs{BeatID: beatID}}
}

// NewImage builds an atomic image block.
func NewImage(attrs *ImageAttrs) *Node {
	return &Node{Type: TypeImage, Attrs: attrs}
}

// IsTextblock reports whether the node holds inline text directly.
func (n *Node) IsTextblock() bool {
	return n.Type == TypeParagraph || n.Type == TypeListItem
}

// IsAtomic reports whether the node is an indivisible leaf block.
func (n *Node) IsAtomic() bool {
	return n.Type == TypeImage || n.Type == TypeBeat || n.Type == TypeBeatEnd
}

// NodeSize returns the number of positions the node occupies: 1 for atomic
// leaves, 2 + rune length for textblocks, 2 + content size for containers.
// The doc root is addressed by its content size alone.
func (n *Node) NodeSize() int {
	switch {
	case n.Type == TypeDoc:
		return n.ContentSize()
	case n.IsAtomic():
		return 1
	case n.IsTextblock():
		return 2 + utf8.RuneCountInString(n.Text)
	default:
		return 2 + n.ContentSize()
	}
}

// ContentSize returns the combined size of the node's children.
func (n *Node) ContentSize() int {
	size := 0
	for _, c := range n.Children {
		size += c.NodeSize()
	}
	return size
}

// Size returns the valid position range upper bound for a document root.
func (n *Node) Size() int {
	return n.NodeSize()
}

// WithChildren returns a copy of the node with the given children.
func (n *Node) WithChildren(children []*Node) *Node {
	c := *n
	c.Children = children
	return &c
}

// WithText returns a copy of a textblock with the given text.
func (n *Node) WithText(text string) *Node {
	c := *n
	c.Text = text
	return &c
}

// WithAttrs returns a copy of the node carrying the given attrs.
func (n *Node) WithAttrs(attrs Attrs) *Node {
	c := *n
	c.Attrs = attrs
	return &c
}

// CanContain reports whether child is structurally valid inside n.
func (n *Node) CanContain(child *Node) bool {
	switch n.Type {
	case TypeDoc:
		return child.Type != TypeDoc && child.Type != TypeListItem
	case TypeBulletList:
		return child.Type == TypeListItem
	default:
		return false
	}
}

// NodeAt returns the node starting exactly at pos, or nil. The returned
// position-relative semantics match SetAttrs steps: pos addresses the token
// that opens the node.
func (n *Node) NodeAt(pos int) *Node {
	node, _ := nodeAt(n.Children, pos, 0)
	return node
}

func nodeAt(children []*Node, pos, base int) (*Node, bool) {
	offset := base
	for _, c := range children {
		if pos == offset {
			return c, true
		}
		end := offset + c.NodeSize()
		if pos > offset && pos < end && len(c.Children) > 0 {
			return nodeAt(c.Children, pos, offset+1)
		}
		offset = end
	}
	return nil, false
}

// FindNode walks the tree depth-first and returns the first node matching
// pred along with the position of its opening token. Returns (nil, -1) when
// no node matches.
func (n *Node) FindNode(pred func(*Node) bool) (*Node, int) {
	return findNode(n.Children, pred, 0)
}

func findNode(children []*Node, pred func(*Node) bool, base int) (*Node, int) {
	offset := base
	for _, c := range children {
		if pred(c) {
			return c, offset
		}
		if len(c.Children) > 0 {
			if found, pos := findNode(c.Children, pred, offset+1); found != nil {
				return found, pos
			}
		}
		offset += c.NodeSize()
	}
	return nil, -1
}

// FindNodeAfter is FindNode restricted to nodes opening after pos.
func (n *Node) FindNodeAfter(pos int, pred func(*Node) bool) (*Node, int) {
	return findNodeAfter(n.Children, pred, 0, pos)
}

func findNodeAfter(children []*Node, pred func(*Node) bool, base, after int) (*Node, int) {
	offset := base
	for _, c := range children {
		if offset > after && pred(c) {
			return c, offset
		}
		if len(c.Children) > 0 {
			if found, pos := findNodeAfter(c.Children, pred, offset+1, after); found != nil {
				return found, pos
			}
		}
		offset += c.NodeSize()
	}
	return nil, -1
}

// FindBeat locates the beat block with the given id.
func (n *Node) FindBeat(beatID string) (*Node, int) {
	return n.FindNode(func(c *Node) bool {
		if c.Type != TypeBeat {
			return false
		}
		attrs, ok := c.Attrs.(*BeatAttrs)
		return ok && attrs.ID == beatID
	})
}

// FindBeatEnd locates the end marker owned by the given beat.
func (n *Node) FindBeatEnd(beatID string) (*Node, int) {
	return n.FindNode(func(c *Node) bool {
		if c.Type != TypeBeatEnd {
			return false
		}
		attrs, ok := c.Attrs.(*BeatEndAttrs)
		return ok && attrs.BeatID == beatID
	})
}

// BeatAttrs returns the typed attrs of a beat node, or nil.
func (n *Node) BeatAttrs() *BeatAttrs {
	attrs, _ := n.Attrs.(*BeatAttrs)
	return attrs
}

// TextBetween extracts the text content of the range [from, to), separating
// textblocks with a newline. Atomic nodes contribute nothing.
func (n *Node) TextBetween(from, to int) string {
	var b strings.Builder
	textBetween(&b, n.Children, from, to, 0)
	return strings.TrimSuffix(b.String(), "\n")
}

func textBetween(b *strings.Builder, children []*Node, from, to, base int) {
	offset := base
	for _, c := range children {
		end := offset + c.NodeSize()
		if end <= from || offset >= to {
			offset = end
			continue
		}
		switch {
		case c.IsTextblock():
			runes := []rune(c.Text)
			start := clamp(from-(offset+1), 0, len(runes))
			stop := clamp(to-(offset+1), 0, len(runes))
			if stop > start {
				b.WriteString(string(runes[start:stop]))
				b.WriteString("\n")
			} else if from <= offset && to >= end {
				// Fully covered empty textblock still separates.
				b.WriteString("\n")
			}
		case len(c.Children) > 0:
			textBetween(b, c.Children, from, to, offset+1)
		}
		offset = end
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// TextContent returns the full text of the document.
func (n *Node) TextContent() string {
	return n.TextBetween(0, n.Size())
}

// CountWords counts whitespace-separated words in a string.
func CountWords(s string) int {
	return len(strings.Fields(s))
}
