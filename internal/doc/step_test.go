package doc

import (
	"errors"
	"testing"

	"inkwell/internal/domain"
	"inkwell/internal/schema"
)

func TestInsertTextStep(t *testing.T) {
	d := schema.NewDoc(schema.NewParagraph("Held"))

	next, _, err := InsertTextStep{Pos: 3, Text: "llo wor"}.apply(d)
	if err != nil {
		t.Fatalf("apply error = %v", err)
	}
	if got := next.Children[0].Text; got != "Hello world" {
		t.Errorf("text = %q, want %q", got, "Hello world")
	}
	// Original document untouched.
	if d.Children[0].Text != "Held" {
		t.Error("apply mutated the input document")
	}
}

func TestInsertTextStepRejectsNonTextblock(t *testing.T) {
	d := schema.NewDoc(
		schema.NewParagraph("Hi"),
		schema.NewBeat(&schema.BeatAttrs{ID: "b1"}),
	)

	tests := []struct {
		name string
		pos  int
	}{
		{name: "block boundary", pos: 0},
		{name: "atomic node", pos: 4},
		{name: "past document end", pos: 99},
		{name: "negative", pos: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := InsertTextStep{Pos: tt.pos, Text: "x"}.apply(d)
			if !errors.Is(err, domain.ErrInvalidPosition) {
				t.Errorf("apply error = %v, want ErrInvalidPosition", err)
			}
		})
	}
}

func TestInsertNodeStep(t *testing.T) {
	d := schema.NewDoc(
		schema.NewParagraph("One"),
		schema.NewParagraph("Two"),
	)

	next, sm, err := InsertNodeStep{Pos: 5, Node: schema.NewBeat(&schema.BeatAttrs{ID: "b1"})}.apply(d)
	if err != nil {
		t.Fatalf("apply error = %v", err)
	}
	if len(next.Children) != 3 {
		t.Fatalf("children = %d, want 3", len(next.Children))
	}
	if next.Children[1].Type != schema.TypeBeat {
		t.Errorf("middle child = %s, want beat", next.Children[1].Type)
	}
	// A position after the insertion point shifts by the node size.
	if got := sm.Map(6, BiasRight); got != 7 {
		t.Errorf("mapped position = %d, want 7", got)
	}
}

func TestInsertNodeStepAppendsAtEnd(t *testing.T) {
	d := schema.NewDoc(schema.NewParagraph("One"))
	next, _, err := InsertNodeStep{Pos: d.Size(), Node: schema.NewParagraph("Two")}.apply(d)
	if err != nil {
		t.Fatalf("apply error = %v", err)
	}
	if len(next.Children) != 2 || next.Children[1].Text != "Two" {
		t.Errorf("unexpected children %+v", next.Children)
	}
}

func TestInsertNodeStepRejectsInvalidPlacement(t *testing.T) {
	d := schema.NewDoc(schema.NewParagraph("One"))

	tests := []struct {
		name string
		pos  int
		node *schema.Node
	}{
		{name: "inside textblock", pos: 2, node: schema.NewParagraph("x")},
		{name: "list item at doc level", pos: 0, node: schema.NewListItem("x")},
		{name: "past end", pos: 99, node: schema.NewParagraph("x")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := InsertNodeStep{Pos: tt.pos, Node: tt.node}.apply(d)
			if !errors.Is(err, domain.ErrInvalidPosition) {
				t.Errorf("apply error = %v, want ErrInvalidPosition", err)
			}
		})
	}
}

func TestDeleteStep(t *testing.T) {
	newDoc := func() *schema.Node {
		return schema.NewDoc(
			schema.NewParagraph("Hello"), // [0, 7)
			schema.NewBeat(&schema.BeatAttrs{ID: "b1"}), // [7, 8)
			schema.NewParagraph("World"), // [8, 15)
		)
	}

	t.Run("fully covered blocks dropped", func(t *testing.T) {
		next, _, err := DeleteStep{From: 7, To: 15}.apply(newDoc())
		if err != nil {
			t.Fatalf("apply error = %v", err)
		}
		if len(next.Children) != 1 || next.Children[0].Text != "Hello" {
			t.Errorf("unexpected children %+v", next.Children)
		}
	})

	t.Run("textblock edges trimmed without merging", func(t *testing.T) {
		next, _, err := DeleteStep{From: 3, To: 11}.apply(newDoc())
		if err != nil {
			t.Fatalf("apply error = %v", err)
		}
		if len(next.Children) != 2 {
			t.Fatalf("children = %d, want 2", len(next.Children))
		}
		if next.Children[0].Text != "He" {
			t.Errorf("first block = %q, want %q", next.Children[0].Text, "He")
		}
		if next.Children[1].Text != "rld" {
			t.Errorf("second block = %q, want %q", next.Children[1].Text, "rld")
		}
	})

	t.Run("empty range is a no-op", func(t *testing.T) {
		d := newDoc()
		next, _, err := DeleteStep{From: 4, To: 4}.apply(d)
		if err != nil {
			t.Fatalf("apply error = %v", err)
		}
		if next != d {
			t.Error("expected the same document back")
		}
	})

	t.Run("inverted range rejected", func(t *testing.T) {
		_, _, err := DeleteStep{From: 5, To: 2}.apply(newDoc())
		if !errors.Is(err, domain.ErrInvalidPosition) {
			t.Errorf("apply error = %v, want ErrInvalidPosition", err)
		}
	})
}

func TestSetAttrsStep(t *testing.T) {
	d := schema.NewDoc(
		schema.NewParagraph("Hi"),
		schema.NewBeat(&schema.BeatAttrs{ID: "b1", Prompt: "old"}),
	)

	next, _, err := SetAttrsStep{Pos: 4, Attrs: &schema.BeatAttrs{ID: "b1", Prompt: "new"}}.apply(d)
	if err != nil {
		t.Fatalf("apply error = %v", err)
	}
	if got := next.Children[1].BeatAttrs().Prompt; got != "new" {
		t.Errorf("prompt = %q, want %q", got, "new")
	}
	if d.Children[1].BeatAttrs().Prompt != "old" {
		t.Error("apply mutated the input document")
	}

	_, _, err = SetAttrsStep{Pos: 1, Attrs: &schema.BeatAttrs{}}.apply(d)
	if !errors.Is(err, domain.ErrInvalidPosition) {
		t.Errorf("apply at non-boundary error = %v, want ErrInvalidPosition", err)
	}
}

func TestTransactionSequentialPositions(t *testing.T) {
	d := schema.NewDoc(schema.NewParagraph(""))

	// Positions refer to the document produced by the preceding steps:
	// after inserting "ab" at 1, position 3 is after the "b".
	tr := NewTransaction("test").
		InsertText(1, "ab").
		InsertText(3, "c")

	next, mapping, err := tr.Apply(d)
	if err != nil {
		t.Fatalf("Apply error = %v", err)
	}
	if got := next.Children[0].Text; got != "abc" {
		t.Errorf("text = %q, want %q", got, "abc")
	}
	if len(mapping.Maps) != 2 {
		t.Errorf("composed maps = %d, want 2", len(mapping.Maps))
	}
}

func TestTransactionAtomicity(t *testing.T) {
	d := schema.NewDoc(schema.NewParagraph("Hello"))

	tr := NewTransaction("test").
		InsertText(1, "X").
		InsertText(999, "Y")

	next, mapping, err := tr.Apply(d)
	if !errors.Is(err, domain.ErrInvalidPosition) {
		t.Fatalf("Apply error = %v, want ErrInvalidPosition", err)
	}
	if next != nil || mapping != nil {
		t.Error("failed apply should return nil document and mapping")
	}
	if d.Children[0].Text != "Hello" {
		t.Error("failed apply mutated the input document")
	}
}
