package doc

import (
	"inkwell/internal/schema"
)

// Transaction is an ordered list of steps applied atomically. Step positions
// refer to the document state produced by the preceding steps of the same
// transaction.
type Transaction struct {
	Steps []Step

	// Origin tags the source of the transaction ("user", "stream", ...),
	// which lets listeners ignore their own mutations.
	Origin string
}

// NewTransaction creates an empty transaction with the given origin tag.
func NewTransaction(origin string) *Transaction {
	return &Transaction{Origin: origin}
}

// InsertText appends an insert-text step.
func (tr *Transaction) InsertText(pos int, text string) *Transaction {
	tr.Steps = append(tr.Steps, InsertTextStep{Pos: pos, Text: text})
	return tr
}

// InsertNode appends an insert-node step.
func (tr *Transaction) InsertNode(pos int, node *schema.Node) *Transaction {
	tr.Steps = append(tr.Steps, InsertNodeStep{Pos: pos, Node: node})
	return tr
}

// Delete appends a delete step for the range [from, to).
func (tr *Transaction) Delete(from, to int) *Transaction {
	tr.Steps = append(tr.Steps, DeleteStep{From: from, To: to})
	return tr
}

// SetAttrs appends an attribute replacement step for the node opening at pos.
func (tr *Transaction) SetAttrs(pos int, attrs schema.Attrs) *Transaction {
	tr.Steps = append(tr.Steps, SetAttrsStep{Pos: pos, Attrs: attrs})
	return tr
}

// Apply runs every step against d and returns the resulting document and the
// composed position mapping. Either all steps succeed or the original
// document is left untouched and an error wrapping domain.ErrInvalidPosition
// is returned.
func (tr *Transaction) Apply(d *schema.Node) (*schema.Node, *Mapping, error) {
	cur := d
	mapping := &Mapping{}
	for _, step := range tr.Steps {
		next, sm, err := step.apply(cur)
		if err != nil {
			return nil, nil, err
		}
		cur = next
		mapping.Append(sm)
	}
	return cur, mapping, nil
}
