// Package nodeview mirrors beat blocks into host rendered widgets. The host
// UI supplies a Renderer; the bridge keeps one widget alive per beat in the
// document and feeds it attribute updates as transactions land.
package nodeview

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"inkwell/internal/beat"
	"inkwell/internal/doc"
	"inkwell/internal/domain"
	"inkwell/internal/schema"
)

// Widget is one rendered beat block owned by the host UI.
type Widget interface {
	// Update pushes a fresh attribute snapshot into the widget.
	Update(attrs *schema.BeatAttrs) error
	// Destroy releases the widget's resources. Called exactly once, when
	// the beat leaves the document or the bridge closes.
	Destroy()
}

// Renderer creates widgets for beat blocks.
type Renderer interface {
	Render(attrs *schema.BeatAttrs) (Widget, error)
}

type mounted struct {
	widget Widget
	attrs  *schema.BeatAttrs
}

// Bridge synchronizes beat widgets with the document. While a beat is
// generating, prompt and generated-content fields of incoming updates are
// ignored so streaming state shown by the widget is not overwritten by
// attribute refreshes.
type Bridge struct {
	editor   *doc.Editor
	beats    *beat.Service
	renderer Renderer
	logger   *slog.Logger

	mu      sync.Mutex
	widgets map[string]*mounted
	detach  func()
}

// NewBridge mounts widgets for every beat already in the document and
// starts tracking transactions.
func NewBridge(editor *doc.Editor, beats *beat.Service, renderer Renderer, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bridge{
		editor:   editor,
		beats:    beats,
		renderer: renderer,
		logger:   logger,
		widgets:  make(map[string]*mounted),
	}
	b.sync(editor.Doc())
	b.detach = editor.OnTransaction(func(ev doc.TransactionEvent) {
		b.sync(ev.After)
	})
	return b
}

// Close detaches from the editor and destroys every mounted widget.
func (b *Bridge) Close() {
	if b.detach != nil {
		b.detach()
		b.detach = nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, m := range b.widgets {
		m.widget.Destroy()
		delete(b.widgets, id)
	}
}

// sync reconciles mounted widgets against the beats present in d.
func (b *Bridge) sync(d *schema.Node) {
	present := make(map[string]*schema.BeatAttrs)
	collectBeats(d, present)

	b.mu.Lock()
	defer b.mu.Unlock()

	for id, m := range b.widgets {
		if _, ok := present[id]; !ok {
			m.widget.Destroy()
			delete(b.widgets, id)
			b.logger.Debug("beat widget destroyed", "beat_id", id)
		}
	}

	for id, attrs := range present {
		m, ok := b.widgets[id]
		if !ok {
			w, err := b.renderer.Render(attrs.Clone().(*schema.BeatAttrs))
			if err != nil {
				b.logger.Error("failed to render beat widget", "beat_id", id, "error", err)
				continue
			}
			b.widgets[id] = &mounted{widget: w, attrs: attrs}
			continue
		}
		next := b.filterUpdate(m.attrs, attrs)
		if next == nil {
			continue
		}
		if err := m.widget.Update(next.Clone().(*schema.BeatAttrs)); err != nil {
			b.logger.Error("failed to update beat widget", "beat_id", id, "error", err)
			continue
		}
		m.attrs = next
	}
}

// filterUpdate decides what the widget should see. Returns nil when nothing
// changed. While the beat is generating, prompt and generated-content stay
// at the widget's last known values.
func (b *Bridge) filterUpdate(prev, incoming *schema.BeatAttrs) *schema.BeatAttrs {
	next := incoming
	if prev.IsGenerating && incoming.IsGenerating {
		next = incoming.Clone().(*schema.BeatAttrs)
		next.Prompt = prev.Prompt
		next.GeneratedContent = prev.GeneratedContent
	}
	if *next == *prev {
		return nil
	}
	return next
}

func collectBeats(n *schema.Node, out map[string]*schema.BeatAttrs) {
	if n.Type == schema.TypeBeat {
		if attrs := n.BeatAttrs(); attrs != nil {
			out[attrs.ID] = attrs
		}
		return
	}
	for _, c := range n.Children {
		collectBeats(c, out)
	}
}

// SubmitPrompt forwards a widget's prompt submission to the beat service.
func (b *Bridge) SubmitPrompt(ctx context.Context, req *beat.SubmitRequest) error {
	return b.beats.Submit(ctx, req)
}

// DeleteBeat forwards a widget's delete action to the beat service.
func (b *Bridge) DeleteBeat(ctx context.Context, beatID string, withContent bool) error {
	return b.beats.DeleteBeat(ctx, beatID, withContent)
}

// ToggleCollapse flips the beat's collapsed flag directly in the document.
func (b *Bridge) ToggleCollapse(beatID string) error {
	return b.editor.Update(func(d *schema.Node) (*doc.Transaction, error) {
		beatNode, beatPos := d.FindBeat(beatID)
		if beatNode == nil {
			return nil, fmt.Errorf("beat %s: %w", beatID, domain.ErrNotFound)
		}
		attrs := beatNode.BeatAttrs().Clone().(*schema.BeatAttrs)
		attrs.IsCollapsed = !attrs.IsCollapsed
		attrs.UpdatedAt = time.Now()
		return doc.NewTransaction("nodeview:collapse").SetAttrs(beatPos, attrs), nil
	})
}
