package doc

import (
	"log/slog"
	"sync"

	"inkwell/internal/schema"
)

// TransactionEvent is delivered to listeners after a transaction applies.
type TransactionEvent struct {
	Tr      *Transaction
	Mapping *Mapping
	Before  *schema.Node
	After   *schema.Node
}

// Listener observes applied transactions. Listeners run synchronously inside
// the dispatch serialization point and must not call Dispatch themselves;
// follow-up mutations belong on a separate goroutine.
type Listener func(TransactionEvent)

// Editor owns a document snapshot and serializes every mutation through
// Dispatch. No two transactions are ever in flight concurrently against the
// same editor: each applies and notifies listeners before the next begins.
type Editor struct {
	mu        sync.Mutex // serialization point for dispatch
	docMu     sync.RWMutex
	d         *schema.Node
	listeners []registeredListener
	nextID    int
	listMu    sync.Mutex
	logger    *slog.Logger
}

type registeredListener struct {
	id int
	fn Listener
}

// NewEditor creates an editor session owning the given document.
func NewEditor(d *schema.Node, logger *slog.Logger) *Editor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Editor{d: d, logger: logger}
}

// Doc returns the latest document snapshot. Callers must not retain the
// snapshot across an await-equivalent boundary; re-read after yielding.
func (e *Editor) Doc() *schema.Node {
	e.docMu.RLock()
	defer e.docMu.RUnlock()
	return e.d
}

// OnTransaction registers a listener and returns a detach function.
func (e *Editor) OnTransaction(fn Listener) func() {
	e.listMu.Lock()
	defer e.listMu.Unlock()
	e.nextID++
	id := e.nextID
	e.listeners = append(e.listeners, registeredListener{id: id, fn: fn})
	return func() {
		e.listMu.Lock()
		defer e.listMu.Unlock()
		for i, l := range e.listeners {
			if l.id == id {
				e.listeners = append(e.listeners[:i], e.listeners[i+1:]...)
				return
			}
		}
	}
}

// Dispatch applies a transaction against the current snapshot and notifies
// listeners. A rejected transaction is logged, leaves the document untouched
// and returns the error; the session stays usable.
func (e *Editor) Dispatch(tr *Transaction) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dispatchLocked(tr)
}

// Update builds and applies a transaction atomically. The builder runs
// against the latest snapshot inside the dispatch serialization point, so
// the positions it computes cannot be shifted by another transaction before
// the steps apply. A nil transaction from the builder is a no-op. The
// builder must not call Dispatch or Update itself.
func (e *Editor) Update(build func(d *schema.Node) (*Transaction, error)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tr, err := build(e.Doc())
	if err != nil {
		return err
	}
	if tr == nil {
		return nil
	}
	return e.dispatchLocked(tr)
}

func (e *Editor) dispatchLocked(tr *Transaction) error {
	before := e.Doc()
	after, mapping, err := tr.Apply(before)
	if err != nil {
		e.logger.Error("transaction rejected",
			"origin", tr.Origin,
			"steps", len(tr.Steps),
			"error", err,
		)
		return err
	}

	e.docMu.Lock()
	e.d = after
	e.docMu.Unlock()

	ev := TransactionEvent{Tr: tr, Mapping: mapping, Before: before, After: after}
	for _, l := range e.snapshotListeners() {
		l(ev)
	}
	return nil
}

func (e *Editor) snapshotListeners() []Listener {
	e.listMu.Lock()
	defer e.listMu.Unlock()
	out := make([]Listener, len(e.listeners))
	for i, l := range e.listeners {
		out[i] = l.fn
	}
	return out
}
