package nodeview

import (
	"errors"
	"sync"
	"testing"

	"inkwell/internal/beat"
	"inkwell/internal/capabilities"
	"inkwell/internal/doc"
	"inkwell/internal/domain"
	"inkwell/internal/history"
	"inkwell/internal/provider"
	"inkwell/internal/repository/memory"
	"inkwell/internal/schema"
)

type recordingRenderer struct {
	mu      sync.Mutex
	widgets map[string]*recordingWidget
}

func newRecordingRenderer() *recordingRenderer {
	return &recordingRenderer{widgets: make(map[string]*recordingWidget)}
}

func (r *recordingRenderer) Render(attrs *schema.BeatAttrs) (Widget, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w := &recordingWidget{last: attrs}
	r.widgets[attrs.ID] = w
	return w, nil
}

func (r *recordingRenderer) widget(t *testing.T, beatID string) *recordingWidget {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.widgets[beatID]
	if !ok {
		t.Fatalf("no widget rendered for beat %s", beatID)
	}
	return w
}

type recordingWidget struct {
	mu        sync.Mutex
	last      *schema.BeatAttrs
	updates   int
	destroyed int
}

func (w *recordingWidget) Update(attrs *schema.BeatAttrs) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.last = attrs
	w.updates++
	return nil
}

func (w *recordingWidget) Destroy() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.destroyed++
}

func (w *recordingWidget) snapshot() (attrs *schema.BeatAttrs, updates, destroyed int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last, w.updates, w.destroyed
}

func newBridgeFixture(t *testing.T, blocks ...*schema.Node) (*doc.Editor, *Bridge, *recordingRenderer) {
	t.Helper()
	caps, err := capabilities.NewRegistry()
	if err != nil {
		t.Fatalf("capability registry: %v", err)
	}
	editor := doc.NewEditor(schema.NewDoc(blocks...), nil)
	store := history.NewStore(memory.NewHistoryRepository(), history.Config{}, nil)
	beats := beat.NewService(editor, provider.NewRegistry(nil), store, caps, "lorem-fast", nil)
	t.Cleanup(beats.Close)

	renderer := newRecordingRenderer()
	bridge := NewBridge(editor, beats, renderer, nil)
	t.Cleanup(bridge.Close)
	return editor, bridge, renderer
}

func setAttrs(t *testing.T, editor *doc.Editor, beatID string, mutate func(*schema.BeatAttrs)) {
	t.Helper()
	d := editor.Doc()
	node, pos := d.FindBeat(beatID)
	if node == nil {
		t.Fatalf("beat %s not found", beatID)
	}
	attrs := node.BeatAttrs().Clone().(*schema.BeatAttrs)
	mutate(attrs)
	if err := editor.Dispatch(doc.NewTransaction("test").SetAttrs(pos, attrs)); err != nil {
		t.Fatalf("Dispatch error = %v", err)
	}
}

func TestBridgeMountsExistingBeats(t *testing.T) {
	_, _, renderer := newBridgeFixture(t,
		schema.NewParagraph("Intro."),
		schema.NewBeat(&schema.BeatAttrs{ID: "b1", Prompt: "one"}),
		schema.NewBeat(&schema.BeatAttrs{ID: "b2", Prompt: "two"}),
	)

	if attrs, _, _ := renderer.widget(t, "b1").snapshot(); attrs.Prompt != "one" {
		t.Errorf("b1 prompt = %q", attrs.Prompt)
	}
	renderer.widget(t, "b2")
}

func TestBridgeMountsBeatsAddedByTransaction(t *testing.T) {
	editor, _, renderer := newBridgeFixture(t, schema.NewParagraph("Intro."))

	tr := doc.NewTransaction("user").InsertNode(0, schema.NewBeat(&schema.BeatAttrs{ID: "b1"}))
	if err := editor.Dispatch(tr); err != nil {
		t.Fatalf("Dispatch error = %v", err)
	}
	renderer.widget(t, "b1")
}

func TestBridgeUpdatesWidgetOnAttrChange(t *testing.T) {
	editor, _, renderer := newBridgeFixture(t, schema.NewBeat(&schema.BeatAttrs{ID: "b1", Prompt: "old"}))

	setAttrs(t, editor, "b1", func(a *schema.BeatAttrs) { a.Prompt = "new" })

	attrs, updates, _ := renderer.widget(t, "b1").snapshot()
	if updates != 1 {
		t.Errorf("updates = %d, want 1", updates)
	}
	if attrs.Prompt != "new" {
		t.Errorf("prompt = %q, want %q", attrs.Prompt, "new")
	}
}

func TestBridgeSuppressesContentFieldsWhileGenerating(t *testing.T) {
	editor, _, renderer := newBridgeFixture(t, schema.NewBeat(&schema.BeatAttrs{ID: "b1", Prompt: "stable"}))

	setAttrs(t, editor, "b1", func(a *schema.BeatAttrs) { a.IsGenerating = true })
	setAttrs(t, editor, "b1", func(a *schema.BeatAttrs) {
		a.Prompt = "mid-flight edit"
		a.GeneratedContent = "partial"
		a.WordCount = 77
	})

	attrs, _, _ := renderer.widget(t, "b1").snapshot()
	if attrs.Prompt != "stable" {
		t.Errorf("prompt = %q, want suppressed while generating", attrs.Prompt)
	}
	if attrs.GeneratedContent != "" {
		t.Errorf("generated content = %q, want suppressed while generating", attrs.GeneratedContent)
	}
	if attrs.WordCount != 77 {
		t.Errorf("word count = %d, non-content fields should flow through", attrs.WordCount)
	}

	// Completion lifts the suppression.
	setAttrs(t, editor, "b1", func(a *schema.BeatAttrs) {
		a.IsGenerating = false
		a.Prompt = "final prompt"
		a.GeneratedContent = "final text"
	})
	attrs, _, _ = renderer.widget(t, "b1").snapshot()
	if attrs.Prompt != "final prompt" || attrs.GeneratedContent != "final text" {
		t.Errorf("post-generation attrs = %+v", attrs)
	}
}

func TestBridgeDestroysWidgetWhenBeatRemoved(t *testing.T) {
	editor, _, renderer := newBridgeFixture(t, schema.NewBeat(&schema.BeatAttrs{ID: "b1"}))

	if err := editor.Dispatch(doc.NewTransaction("user").Delete(0, 1)); err != nil {
		t.Fatalf("Dispatch error = %v", err)
	}

	if _, _, destroyed := renderer.widget(t, "b1").snapshot(); destroyed != 1 {
		t.Errorf("destroyed = %d, want 1", destroyed)
	}
}

func TestBridgeCloseDestroysAllWidgets(t *testing.T) {
	editor, bridge, renderer := newBridgeFixture(t,
		schema.NewBeat(&schema.BeatAttrs{ID: "b1"}),
		schema.NewBeat(&schema.BeatAttrs{ID: "b2"}),
	)

	bridge.Close()
	for _, id := range []string{"b1", "b2"} {
		if _, _, destroyed := renderer.widget(t, id).snapshot(); destroyed != 1 {
			t.Errorf("widget %s destroyed = %d, want 1", id, destroyed)
		}
	}

	// Closed bridge ignores later transactions.
	if err := editor.Dispatch(doc.NewTransaction("user").InsertNode(0, schema.NewBeat(&schema.BeatAttrs{ID: "b3"}))); err != nil {
		t.Fatalf("Dispatch error = %v", err)
	}
	renderer.mu.Lock()
	_, rendered := renderer.widgets["b3"]
	renderer.mu.Unlock()
	if rendered {
		t.Error("closed bridge rendered a new widget")
	}
}

func TestToggleCollapse(t *testing.T) {
	editor, bridge, _ := newBridgeFixture(t, schema.NewBeat(&schema.BeatAttrs{ID: "b1"}))

	if err := bridge.ToggleCollapse("b1"); err != nil {
		t.Fatalf("ToggleCollapse error = %v", err)
	}
	node, _ := editor.Doc().FindBeat("b1")
	if !node.BeatAttrs().IsCollapsed {
		t.Error("beat not collapsed after toggle")
	}

	if err := bridge.ToggleCollapse("b1"); err != nil {
		t.Fatalf("ToggleCollapse error = %v", err)
	}
	node, _ = editor.Doc().FindBeat("b1")
	if node.BeatAttrs().IsCollapsed {
		t.Error("beat still collapsed after second toggle")
	}

	if err := bridge.ToggleCollapse("missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}
