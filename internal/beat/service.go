// Package beat owns the lifecycle of beat blocks: prompt submission, the
// per-beat generation state machine, streaming insertion of generated text,
// and restore-from-history orchestration.
package beat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"inkwell/internal/capabilities"
	"inkwell/internal/doc"
	"inkwell/internal/domain"
	"inkwell/internal/domain/models"
	"inkwell/internal/domain/services"
	"inkwell/internal/history"
	"inkwell/internal/provider"
	"inkwell/internal/schema"
)

// Action selects what a prompt submission does to the beat's span.
type Action string

const (
	// ActionGenerate starts a generation without touching existing content.
	ActionGenerate Action = "generate"
	// ActionRegenerate replaces only the span between the beat and its end
	// marker, preserving pre-existing text below the boundary.
	ActionRegenerate Action = "regenerate"
	// ActionRewrite replaces the full span to the next beat or document end,
	// carrying the replaced text as context.
	ActionRewrite Action = "rewrite"
	// ActionDeleteAfter deletes the full span and requests no generation.
	ActionDeleteAfter Action = "deleteAfter"
)

const defaultWordCount = 200

// SubmitRequest is one prompt submission for a beat.
type SubmitRequest struct {
	BeatID             string
	StoryID            string
	Prompt             string
	Action             Action
	Model              string
	WordCount          int
	RewriteInstruction string
	// StoryContext is the assembled story/codex context, built by the caller.
	StoryContext string
}

// Validate checks the request shape.
func (r *SubmitRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.BeatID, validation.Required),
		validation.Field(&r.Action,
			validation.Required,
			validation.In(ActionGenerate, ActionRegenerate, ActionRewrite, ActionDeleteAfter),
		),
		validation.Field(&r.Prompt,
			validation.When(r.Action != ActionDeleteAfter, validation.Required),
		),
		validation.Field(&r.WordCount, validation.Min(0)),
	)
}

type session struct {
	token  uint64
	cancel context.CancelFunc
}

// Service coordinates beat generation against one editor session. All
// collaborators are passed in explicitly; there is no ambient lookup.
type Service struct {
	editor       *doc.Editor
	providers    *provider.Registry
	history      *history.Store
	caps         *capabilities.Registry
	defaultModel string
	logger       *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
	tokens   map[string]uint64 // monotonic per beat, never reset
	detach   func()
}

// NewService creates a beat service bound to an editor. The service watches
// the editor's transactions so streams whose beat disappears are cancelled
// and their network resources released.
func NewService(
	editor *doc.Editor,
	providers *provider.Registry,
	historyStore *history.Store,
	caps *capabilities.Registry,
	defaultModel string,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		editor:       editor,
		providers:    providers,
		history:      historyStore,
		caps:         caps,
		defaultModel: defaultModel,
		logger:       logger,
		sessions:     make(map[string]*session),
		tokens:       make(map[string]uint64),
	}
	s.detach = editor.OnTransaction(s.onTransaction)
	return s
}

// Close detaches from the editor and cancels every active stream.
func (s *Service) Close() {
	if s.detach != nil {
		s.detach()
		s.detach = nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		sess.cancel()
		delete(s.sessions, id)
	}
}

func (s *Service) onTransaction(ev doc.TransactionEvent) {
	s.mu.Lock()
	var gone []string
	for id := range s.sessions {
		if b, _ := ev.After.FindBeat(id); b == nil {
			gone = append(gone, id)
		}
	}
	s.mu.Unlock()
	for _, id := range gone {
		s.CancelGeneration(id)
		s.logger.Info("generation cancelled, beat removed from document", "beat_id", id)
	}
}

// Submit runs one prompt submission: snapshots overwritten content into
// history, applies the action's deletion semantics, and starts a stream for
// generating actions. At most one stream is active per beat; a resubmission
// supersedes the prior stream and its remaining events are discarded.
func (s *Service) Submit(ctx context.Context, req *SubmitRequest) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	if b, _ := s.editor.Doc().FindBeat(req.BeatID); b == nil {
		return fmt.Errorf("beat %s: %w", req.BeatID, domain.ErrNotFound)
	}

	token, genCtx := s.newSession(req.BeatID)

	// Spans, the overwritten-content snapshot, and the deletion steps are
	// all derived from the same snapshot the steps apply against; the
	// builder runs inside the editor's serialization point.
	var (
		attrs     *schema.BeatAttrs
		model     string
		wordCount int
		rewritten string
	)
	err := s.editor.Update(func(d *schema.Node) (*doc.Transaction, error) {
		beatNode, beatPos := d.FindBeat(req.BeatID)
		if beatNode == nil {
			return nil, fmt.Errorf("beat %s: %w", req.BeatID, domain.ErrNotFound)
		}
		attrs = beatNode.BeatAttrs().Clone().(*schema.BeatAttrs)

		model = req.Model
		if model == "" {
			model = attrs.Model
		}
		if model == "" {
			model = s.defaultModel
		}
		wordCount = req.WordCount
		if wordCount <= 0 {
			wordCount = attrs.WordCount
		}
		if wordCount <= 0 {
			wordCount = defaultWordCount
		}
		wordCount = s.caps.ClampWordCount(model, wordCount)

		genSpan, hasMarker, err := generatedSpan(d, req.BeatID)
		if err != nil {
			return nil, err
		}
		full, err := fullSpan(d, req.BeatID)
		if err != nil {
			return nil, err
		}

		// Snapshot content the action is about to overwrite. Fire-and-forget:
		// the save never blocks the generation call.
		var overwritten string
		switch req.Action {
		case ActionRewrite, ActionDeleteAfter:
			if !full.empty() {
				overwritten = d.TextBetween(full.from, full.to)
			}
		default:
			overwritten = spanText(d, genSpan, hasMarker, full)
		}
		rewritten = overwritten
		savedHistory := strings.TrimSpace(overwritten) != ""
		if savedHistory {
			s.saveVersionAsync(req, attrs, overwritten)
		}

		tr := doc.NewTransaction("beat:" + string(req.Action))
		switch req.Action {
		case ActionGenerate:
			// Existing boundary and content stay untouched.
		case ActionRegenerate:
			if hasMarker {
				if !genSpan.empty() {
					tr.Delete(genSpan.from, genSpan.to)
				}
			} else if !full.empty() {
				// Legacy beat without a tracked boundary: fall back to deleting
				// to the next beat or document end.
				tr.Delete(full.from, full.to)
			}
		case ActionRewrite, ActionDeleteAfter:
			if !full.empty() {
				tr.Delete(full.from, full.to)
			}
		}

		if req.Action == ActionDeleteAfter {
			attrs.GeneratedContent = ""
			attrs.IsGenerating = false
			attrs.HasHistory = attrs.HasHistory || savedHistory
			attrs.UpdatedAt = time.Now()
			tr.SetAttrs(beatPos, attrs)
			return tr, nil
		}

		attrs.Prompt = req.Prompt
		attrs.Model = model
		attrs.WordCount = wordCount
		attrs.IsGenerating = true
		attrs.HasHistory = attrs.HasHistory || savedHistory
		attrs.UpdatedAt = time.Now()
		tr.SetAttrs(beatPos, attrs)
		return tr, nil
	})
	if err != nil {
		s.endSession(req.BeatID, token)
		return err
	}
	if req.Action == ActionDeleteAfter {
		s.endSession(req.BeatID, token)
		return nil
	}

	genReq := &services.GenerateRequest{
		Prompt:       req.Prompt,
		Model:        model,
		BeatType:     attrs.BeatType,
		WordCount:    wordCount,
		StoryContext: req.StoryContext,
	}
	if req.Action == ActionRewrite {
		genReq.ExistingText = rewritten
		genReq.RewriteInstruction = req.RewriteInstruction
	}
	if attrs.BeatType == schema.BeatTypeScene {
		if c, ok := s.caps.Lookup(model); !ok || c.SceneBridging {
			genReq.TextAfterBeat = textAfterGenerated(s.editor.Doc(), req.BeatID)
		}
	}

	p, err := s.providers.ForModel(model)
	if err != nil {
		s.failStream(req.BeatID, token, err, &streamState{})
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	events, err := p.Stream(genCtx, genReq)
	if err != nil {
		s.failStream(req.BeatID, token, err, &streamState{})
		return &domain.GenerationError{BeatID: req.BeatID, Err: err}
	}

	s.logger.Info("beat generation started",
		"beat_id", req.BeatID,
		"action", req.Action,
		"model", model,
		"word_count", wordCount,
		"session", token,
	)
	go s.consumeStream(req.BeatID, token, events)
	return nil
}

func (s *Service) saveVersionAsync(req *SubmitRequest, attrs *schema.BeatAttrs, content string) {
	action := models.ActionGenerate
	if req.Action == ActionRewrite {
		action = models.ActionRewrite
	}
	version := models.BeatVersion{
		Content:            content,
		Prompt:             attrs.Prompt,
		Model:              attrs.Model,
		BeatType:           string(attrs.BeatType),
		WordCount:          attrs.WordCount,
		Action:             action,
		RewriteInstruction: req.RewriteInstruction,
	}
	if req.Action == ActionRewrite {
		version.ExistingText = content
	}
	go func() {
		if _, err := s.history.SaveVersion(context.Background(), req.BeatID, req.StoryID, version); err != nil {
			s.logger.Error("failed to save beat version", "beat_id", req.BeatID, "error", err)
		}
	}()
}

// CancelGeneration supersedes any active stream for the beat: in-flight
// chunk callbacks become no-ops and the underlying request is aborted.
func (s *Service) CancelGeneration(beatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[beatID]++
	if sess, ok := s.sessions[beatID]; ok {
		sess.cancel()
		delete(s.sessions, beatID)
	}
}

// IsGenerating reports whether the beat has an active stream.
func (s *Service) IsGenerating(beatID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[beatID]
	return ok
}

// DeleteBeat removes a beat block, its end marker, and (optionally) the
// generated span, then drops the beat's stored history.
func (s *Service) DeleteBeat(ctx context.Context, beatID string, withContent bool) error {
	s.CancelGeneration(beatID)

	err := s.editor.Update(func(d *schema.Node) (*doc.Transaction, error) {
		_, beatPos := d.FindBeat(beatID)
		if beatPos < 0 {
			return nil, fmt.Errorf("beat %s: %w", beatID, domain.ErrNotFound)
		}

		tr := doc.NewTransaction("beat:delete")
		if withContent {
			full, err := fullSpan(d, beatID)
			if err != nil {
				return nil, err
			}
			tr.Delete(beatPos, full.to)
		} else {
			if _, markerPos := d.FindBeatEnd(beatID); markerPos > beatPos {
				tr.Delete(markerPos, markerPos+1)
			}
			tr.Delete(beatPos, beatPos+1)
		}
		return tr, nil
	})
	if err != nil {
		return err
	}
	return s.history.DeleteHistory(ctx, beatID)
}

// UpdatePrompt edits the stored prompt of an idle beat. Refreshes of cached
// attributes are suppressed while a generation is in flight so in-progress
// state is not clobbered.
func (s *Service) UpdatePrompt(beatID, prompt string) error {
	return s.editor.Update(func(d *schema.Node) (*doc.Transaction, error) {
		beatNode, beatPos := d.FindBeat(beatID)
		if beatNode == nil {
			return nil, fmt.Errorf("beat %s: %w", beatID, domain.ErrNotFound)
		}
		attrs := beatNode.BeatAttrs()
		if attrs.IsGenerating {
			return nil, nil
		}
		next := attrs.Clone().(*schema.BeatAttrs)
		next.Prompt = prompt
		next.UpdatedAt = time.Now()
		return doc.NewTransaction("beat:update").SetAttrs(beatPos, next), nil
	})
}

// History exposes the version store for callers orchestrating history UI.
func (s *Service) History() *history.Store {
	return s.history
}

func (s *Service) newSession(beatID string) (uint64, context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.sessions[beatID]; ok {
		old.cancel()
	}
	s.tokens[beatID]++
	token := s.tokens[beatID]
	ctx, cancel := context.WithCancel(context.Background())
	s.sessions[beatID] = &session{token: token, cancel: cancel}
	return token, ctx
}

func (s *Service) sessionAlive(beatID string, token uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[beatID]
	return ok && sess.token == token
}

func (s *Service) endSession(beatID string, token uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[beatID]; ok && sess.token == token {
		sess.cancel()
		delete(s.sessions, beatID)
	}
}

// spanText extracts the text the current action would overwrite.
func spanText(d *schema.Node, genSpan span, hasMarker bool, full span) string {
	if hasMarker {
		if genSpan.empty() {
			return ""
		}
		return d.TextBetween(genSpan.from, genSpan.to)
	}
	if full.empty() {
		return ""
	}
	return d.TextBetween(full.from, full.to)
}
