package beat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"inkwell/internal/doc"
	"inkwell/internal/domain"
	"inkwell/internal/schema"
)

// RestoreVersion replaces the beat's generated span with the content of a
// stored version and marks that version current. An active stream for the
// beat is superseded first so late chunks cannot interleave with the
// restored text.
func (s *Service) RestoreVersion(ctx context.Context, beatID, versionID string) error {
	hist, err := s.history.GetHistory(ctx, beatID)
	if err != nil {
		return err
	}
	if hist == nil {
		return fmt.Errorf("beat %s: %w", beatID, domain.ErrHistoryNotFound)
	}
	version := hist.FindVersion(versionID)
	if version == nil {
		return fmt.Errorf("version %s: %w", versionID, domain.ErrVersionNotFound)
	}

	s.CancelGeneration(beatID)

	err = s.editor.Update(func(d *schema.Node) (*doc.Transaction, error) {
		beatNode, beatPos := d.FindBeat(beatID)
		if beatNode == nil {
			return nil, fmt.Errorf("beat %s: %w", beatID, domain.ErrNotFound)
		}

		tr := doc.NewTransaction("beat:restore")

		genSpan, hasMarker, err := generatedSpan(d, beatID)
		if err != nil {
			return nil, err
		}
		insertAt := beatPos + 1
		if hasMarker {
			if !genSpan.empty() {
				tr.Delete(genSpan.from, genSpan.to)
			}
		} else {
			tr.InsertNode(insertAt, schema.NewBeatEnd(beatID))
		}

		for _, para := range strings.Split(version.Content, "\n") {
			node := schema.NewParagraph(para)
			tr.InsertNode(insertAt, node)
			insertAt += node.NodeSize()
		}

		attrs := beatNode.BeatAttrs().Clone().(*schema.BeatAttrs)
		attrs.GeneratedContent = version.Content
		attrs.Prompt = version.Prompt
		if version.Model != "" {
			attrs.Model = version.Model
		}
		if version.WordCount > 0 {
			attrs.WordCount = version.WordCount
		}
		attrs.CurrentVersionID = versionID
		attrs.IsGenerating = false
		attrs.HasHistory = true
		attrs.UpdatedAt = time.Now()
		tr.SetAttrs(beatPos, attrs)
		return tr, nil
	})
	if err != nil {
		return err
	}
	if err := s.history.SetCurrentVersion(ctx, beatID, versionID); err != nil {
		return err
	}
	s.logger.Info("beat version restored", "beat_id", beatID, "version_id", versionID)
	return nil
}
