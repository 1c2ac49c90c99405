package doc

import (
	"fmt"
	"unicode/utf8"

	"inkwell/internal/domain"
	"inkwell/internal/schema"
)

// Step is one atomic document mutation. Steps validate their positions
// against the document they are applied to and return the changed document
// plus the map describing how positions shift.
type Step interface {
	apply(d *schema.Node) (*schema.Node, StepMap, error)
}

// InsertTextStep inserts text inside an existing textblock.
type InsertTextStep struct {
	Pos  int
	Text string
}

func (s InsertTextStep) apply(d *schema.Node) (*schema.Node, StepMap, error) {
	if s.Pos < 0 || s.Pos > d.Size() {
		return nil, StepMap{}, fmt.Errorf("insert text at %d in doc of size %d: %w", s.Pos, d.Size(), domain.ErrInvalidPosition)
	}
	children, ok := insertTextIn(d.Children, s.Pos, s.Text)
	if !ok {
		return nil, StepMap{}, fmt.Errorf("position %d is not inside a textblock: %w", s.Pos, domain.ErrInvalidPosition)
	}
	sm := StepMap{Changes: []Change{{Start: s.Pos, OldSize: 0, NewSize: utf8.RuneCountInString(s.Text)}}}
	return d.WithChildren(children), sm, nil
}

func insertTextIn(children []*schema.Node, pos int, text string) ([]*schema.Node, bool) {
	offset := 0
	for i, c := range children {
		end := offset + c.NodeSize()
		if pos > offset && pos < end {
			if c.IsTextblock() {
				runes := []rune(c.Text)
				idx := pos - (offset + 1)
				if idx < 0 || idx > len(runes) {
					return nil, false
				}
				out := copyNodes(children)
				out[i] = c.WithText(string(runes[:idx]) + text + string(runes[idx:]))
				return out, true
			}
			if !c.IsAtomic() {
				inner, ok := insertTextIn(c.Children, pos-(offset+1), text)
				if !ok {
					return nil, false
				}
				out := copyNodes(children)
				out[i] = c.WithChildren(inner)
				return out, true
			}
			return nil, false
		}
		offset = end
	}
	return nil, false
}

// InsertNodeStep inserts a block node at a boundary between siblings.
type InsertNodeStep struct {
	Pos  int
	Node *schema.Node
}

func (s InsertNodeStep) apply(d *schema.Node) (*schema.Node, StepMap, error) {
	if s.Pos < 0 || s.Pos > d.Size() {
		return nil, StepMap{}, fmt.Errorf("insert node at %d in doc of size %d: %w", s.Pos, d.Size(), domain.ErrInvalidPosition)
	}
	children, ok := insertNodeIn(d, d.Children, s.Pos, s.Node)
	if !ok {
		return nil, StepMap{}, fmt.Errorf("position %d is not a valid block boundary for %s: %w", s.Pos, s.Node.Type, domain.ErrInvalidPosition)
	}
	sm := StepMap{Changes: []Change{{Start: s.Pos, OldSize: 0, NewSize: s.Node.NodeSize()}}}
	return d.WithChildren(children), sm, nil
}

func insertNodeIn(parent *schema.Node, children []*schema.Node, pos int, node *schema.Node) ([]*schema.Node, bool) {
	offset := 0
	for i, c := range children {
		if pos == offset {
			if !parent.CanContain(node) {
				return nil, false
			}
			out := make([]*schema.Node, 0, len(children)+1)
			out = append(out, children[:i]...)
			out = append(out, node)
			out = append(out, children[i:]...)
			return out, true
		}
		end := offset + c.NodeSize()
		if pos > offset && pos < end {
			if c.IsTextblock() || c.IsAtomic() {
				return nil, false
			}
			inner, ok := insertNodeIn(c, c.Children, pos-(offset+1), node)
			if !ok {
				return nil, false
			}
			out := copyNodes(children)
			out[i] = c.WithChildren(inner)
			return out, true
		}
		offset = end
	}
	if pos == offset && parent.CanContain(node) {
		out := copyNodes(children)
		return append(out, node), true
	}
	return nil, false
}

// DeleteStep removes the range [From, To). Fully covered blocks are dropped;
// textblocks at the edges are trimmed in place (blocks are not merged).
type DeleteStep struct {
	From int
	To   int
}

func (s DeleteStep) apply(d *schema.Node) (*schema.Node, StepMap, error) {
	if s.From < 0 || s.To > d.Size() || s.From > s.To {
		return nil, StepMap{}, fmt.Errorf("delete range [%d, %d) in doc of size %d: %w", s.From, s.To, d.Size(), domain.ErrInvalidPosition)
	}
	if s.From == s.To {
		return d, StepMap{}, nil
	}
	children := deleteRangeIn(d.Children, s.From, s.To)
	sm := StepMap{Changes: []Change{{Start: s.From, OldSize: s.To - s.From, NewSize: 0}}}
	return d.WithChildren(children), sm, nil
}

func deleteRangeIn(children []*schema.Node, from, to int) []*schema.Node {
	out := make([]*schema.Node, 0, len(children))
	offset := 0
	for _, c := range children {
		end := offset + c.NodeSize()
		switch {
		case end <= from || offset >= to:
			out = append(out, c)
		case from <= offset && to >= end:
			// fully covered: dropped
		case c.IsTextblock():
			runes := []rune(c.Text)
			start := clampInt(from-(offset+1), 0, len(runes))
			stop := clampInt(to-(offset+1), 0, len(runes))
			out = append(out, c.WithText(string(runes[:start])+string(runes[stop:])))
		case c.IsAtomic():
			out = append(out, c)
		default:
			inner := deleteRangeIn(c.Children, from-(offset+1), to-(offset+1))
			out = append(out, c.WithChildren(inner))
		}
		offset = end
	}
	return out
}

// SetAttrsStep replaces the attributes of the node opening at Pos.
type SetAttrsStep struct {
	Pos   int
	Attrs schema.Attrs
}

func (s SetAttrsStep) apply(d *schema.Node) (*schema.Node, StepMap, error) {
	children, ok := setAttrsIn(d.Children, s.Pos, s.Attrs)
	if !ok {
		return nil, StepMap{}, fmt.Errorf("no node starts at position %d: %w", s.Pos, domain.ErrInvalidPosition)
	}
	return d.WithChildren(children), StepMap{}, nil
}

func setAttrsIn(children []*schema.Node, pos int, attrs schema.Attrs) ([]*schema.Node, bool) {
	offset := 0
	for i, c := range children {
		if pos == offset {
			out := copyNodes(children)
			out[i] = c.WithAttrs(attrs)
			return out, true
		}
		end := offset + c.NodeSize()
		if pos > offset && pos < end && !c.IsTextblock() && !c.IsAtomic() {
			inner, ok := setAttrsIn(c.Children, pos-(offset+1), attrs)
			if !ok {
				return nil, false
			}
			out := copyNodes(children)
			out[i] = c.WithChildren(inner)
			return out, true
		}
		offset = end
	}
	return nil, false
}

func copyNodes(nodes []*schema.Node) []*schema.Node {
	out := make([]*schema.Node, len(nodes))
	copy(out, nodes)
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
