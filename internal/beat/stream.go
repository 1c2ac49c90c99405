package beat

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"inkwell/internal/doc"
	"inkwell/internal/domain"
	"inkwell/internal/domain/services"
	"inkwell/internal/schema"
)

// streamState carries insertion context between chunks of one stream.
// Positions are never cached across chunks; every chunk re-derives its
// insertion point from the end marker so concurrent edits cannot corrupt
// the stream.
type streamState struct {
	// trailingEmpty is set when the previous chunk ended with a paragraph
	// break, leaving an empty paragraph before the marker.
	trailingEmpty bool
}

func (s *Service) consumeStream(beatID string, token uint64, events <-chan services.StreamEvent) {
	var accumulated strings.Builder
	st := &streamState{}

	for ev := range events {
		if !s.sessionAlive(beatID, token) {
			s.logger.Debug("discarding stream event",
				"beat_id", beatID,
				"session", token,
				"reason", domain.ErrStaleSession,
			)
			return
		}
		switch ev.Type {
		case services.EventChunk:
			accumulated.WriteString(ev.Text)
			if err := s.applyChunk(beatID, ev.Text, st); err != nil {
				if errors.Is(err, domain.ErrAnchorLost) {
					s.logger.Debug("stream anchor lost, beat no longer in document", "beat_id", beatID)
					s.endSession(beatID, token)
					return
				}
				s.logger.Error("failed to apply stream chunk", "beat_id", beatID, "error", err)
			}
		case services.EventComplete:
			full := ev.Text
			if full == "" {
				full = accumulated.String()
			}
			s.finishStream(beatID, token, full, st)
			return
		case services.EventError:
			s.failStream(beatID, token, ev.Err, st)
			return
		}
	}

	// Channel closed without a terminal event. Treat what arrived as the
	// complete result rather than leaving the beat generating forever.
	if s.sessionAlive(beatID, token) {
		s.finishStream(beatID, token, accumulated.String(), st)
	}
}

// applyChunk inserts one chunk of streamed text immediately before the
// beat's end marker, splitting paragraphs on newlines. The marker is
// located fresh on every call, inside the editor's serialization point, so
// concurrent edits elsewhere in the document cannot shift the computed
// positions before the steps apply.
func (s *Service) applyChunk(beatID, text string, st *streamState) error {
	if text == "" {
		return nil
	}
	return s.editor.Update(func(d *schema.Node) (*doc.Transaction, error) {
		if b, _ := d.FindBeat(beatID); b == nil {
			return nil, fmt.Errorf("beat %s: %w", beatID, domain.ErrAnchorLost)
		}

		tr := doc.NewTransaction("beat:stream")
		markerPos, paraEmpty := s.prepareCursor(d, beatID, st, tr)
		paraEnd := markerPos - 1

		newParagraph := func() {
			tr.InsertNode(markerPos, schema.NewParagraph(""))
			markerPos += 2
			paraEnd = markerPos - 1
			paraEmpty = true
		}
		insert := func(seg string) {
			tr.InsertText(paraEnd, seg)
			n := utf8.RuneCountInString(seg)
			paraEnd += n
			markerPos += n
			paraEmpty = false
		}

		leading := strings.HasPrefix(text, "\n")
		trailing := strings.HasSuffix(text, "\n")
		parts := strings.FieldsFunc(text, func(r rune) bool { return r == '\n' })

		if leading && !paraEmpty {
			newParagraph()
		}
		for i, part := range parts {
			if i > 0 {
				newParagraph()
			}
			insert(part)
		}
		if trailing {
			if !paraEmpty {
				newParagraph()
			}
			st.trailingEmpty = true
		} else {
			st.trailingEmpty = false
		}

		return tr, nil
	})
}

// prepareCursor queues the steps that establish a valid insertion point:
// the end marker exists, a trailing empty paragraph from the previous chunk
// is removed, and a textblock sits directly before the marker. It returns
// the marker position after the queued steps and whether that textblock is
// empty.
func (s *Service) prepareCursor(d *schema.Node, beatID string, st *streamState, tr *doc.Transaction) (markerPos int, paraEmpty bool) {
	marker, markerPos := d.FindBeatEnd(beatID)
	if marker == nil {
		_, beatPos := d.FindBeat(beatID)
		markerPos = beatPos + 1
		tr.InsertNode(markerPos, schema.NewBeatEnd(beatID))
		tr.InsertNode(markerPos, schema.NewParagraph(""))
		return markerPos + 2, true
	}

	prev, _ := topLevelBefore(d, markerPos)
	if st.trailingEmpty && prev != nil && prev.Type == schema.TypeParagraph && prev.Text == "" {
		tr.Delete(markerPos-2, markerPos)
		markerPos -= 2
		prev = nil
	}
	if prev != nil && prev.IsTextblock() {
		return markerPos, prev.Text == ""
	}
	tr.InsertNode(markerPos, schema.NewParagraph(""))
	return markerPos + 2, true
}

// finishStream stamps the completed result onto the beat's attributes and
// drops any dangling empty paragraph left by a trailing chunk break.
func (s *Service) finishStream(beatID string, token uint64, fullText string, st *streamState) {
	if !s.sessionAlive(beatID, token) {
		return
	}
	defer s.endSession(beatID, token)

	var attrs *schema.BeatAttrs
	err := s.editor.Update(func(d *schema.Node) (*doc.Transaction, error) {
		beatNode, beatPos := d.FindBeat(beatID)
		if beatNode == nil {
			return nil, nil
		}

		tr := doc.NewTransaction("beat:complete")
		if st.trailingEmpty {
			if _, markerPos := d.FindBeatEnd(beatID); markerPos > 0 {
				if prev, _ := topLevelBefore(d, markerPos); prev != nil && prev.Type == schema.TypeParagraph && prev.Text == "" {
					tr.Delete(markerPos-2, markerPos)
				}
			}
		}

		attrs = beatNode.BeatAttrs().Clone().(*schema.BeatAttrs)
		attrs.GeneratedContent = strings.TrimSpace(fullText)
		attrs.IsGenerating = false
		attrs.UpdatedAt = time.Now()
		tr.SetAttrs(beatPos, attrs)
		return tr, nil
	})
	if err != nil {
		s.logger.Error("failed to finalize generation", "beat_id", beatID, "error", err)
		return
	}
	if attrs == nil {
		return
	}
	s.logger.Info("beat generation complete",
		"beat_id", beatID,
		"characters", len(attrs.GeneratedContent),
		"words", schema.CountWords(attrs.GeneratedContent),
	)
}

// failStream surfaces a generation failure inline in the document and
// clears the generating flag so the beat can be retried.
func (s *Service) failStream(beatID string, token uint64, cause error, st *streamState) {
	if !s.sessionAlive(beatID, token) {
		return
	}
	defer s.endSession(beatID, token)

	genErr := &domain.GenerationError{BeatID: beatID, Err: cause}
	s.logger.Error("beat generation failed", "beat_id", beatID, "error", cause)

	err := s.editor.Update(func(d *schema.Node) (*doc.Transaction, error) {
		beatNode, beatPos := d.FindBeat(beatID)
		if beatNode == nil {
			return nil, nil
		}

		tr := doc.NewTransaction("beat:error")
		markerPos, paraEmpty := s.prepareCursor(d, beatID, st, tr)
		msg := fmt.Sprintf("[Generation failed: %v]", cause)
		if paraEmpty {
			tr.InsertText(markerPos-1, msg)
		} else {
			tr.InsertNode(markerPos, schema.NewParagraph(msg))
		}

		attrs := beatNode.BeatAttrs().Clone().(*schema.BeatAttrs)
		attrs.IsGenerating = false
		attrs.UpdatedAt = time.Now()
		tr.SetAttrs(beatPos, attrs)
		return tr, nil
	})
	if err != nil {
		s.logger.Error("failed to record generation failure", "beat_id", beatID, "error", genErr, "dispatch_error", err)
	}
}

// topLevelBefore returns the document child ending exactly at pos, with
// its start position. Returns nil when pos is not a top level boundary.
func topLevelBefore(d *schema.Node, pos int) (*schema.Node, int) {
	offset := 0
	for _, c := range d.Children {
		end := offset + c.NodeSize()
		if end == pos {
			return c, offset
		}
		if end > pos {
			return nil, -1
		}
		offset = end
	}
	return nil, -1
}
