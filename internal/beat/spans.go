package beat

import (
	"fmt"

	"inkwell/internal/domain"
	"inkwell/internal/schema"
)

// span is a half-open position range in a specific document snapshot. Spans
// are always re-derived from anchors; they must not outlive the snapshot
// they were computed against.
type span struct {
	from int
	to   int
}

func (s span) empty() bool { return s.to <= s.from }

// generatedSpan returns the range between a beat block and its end marker:
// the machine-generated content that regenerate may freely delete.
// hasMarker is false for legacy beats with no tracked boundary.
func generatedSpan(d *schema.Node, beatID string) (sp span, hasMarker bool, err error) {
	beat, beatPos := d.FindBeat(beatID)
	if beat == nil {
		return span{}, false, fmt.Errorf("beat %s: %w", beatID, domain.ErrAnchorLost)
	}
	marker, markerPos := d.FindBeatEnd(beatID)
	if marker == nil {
		return span{}, false, nil
	}
	if markerPos < beatPos+1 {
		// Marker drifted above its beat; treat as untracked.
		return span{}, false, nil
	}
	return span{from: beatPos + 1, to: markerPos}, true, nil
}

// fullSpan returns the range from just after the beat block to the next beat
// block or the document end. The end marker, when present, is inside the
// range.
func fullSpan(d *schema.Node, beatID string) (span, error) {
	beat, beatPos := d.FindBeat(beatID)
	if beat == nil {
		return span{}, fmt.Errorf("beat %s: %w", beatID, domain.ErrAnchorLost)
	}
	from := beatPos + 1
	to := d.Size()
	if next, nextPos := nextBeatAfter(d, beatPos); next != nil {
		to = nextPos
	}
	return span{from: from, to: to}, nil
}

// nextBeatAfter finds the first beat block opening after pos.
func nextBeatAfter(d *schema.Node, pos int) (*schema.Node, int) {
	return d.FindNodeAfter(pos, func(n *schema.Node) bool {
		return n.Type == schema.TypeBeat
	})
}

// textAfterGenerated extracts the prose following the beat's generated span
// up to the next beat or document end: the bridging context for scene beats.
func textAfterGenerated(d *schema.Node, beatID string) string {
	sp, hasMarker, err := generatedSpan(d, beatID)
	if err != nil {
		return ""
	}
	full, err := fullSpan(d, beatID)
	if err != nil {
		return ""
	}
	start := full.from
	if hasMarker {
		start = sp.to + 1 // skip the marker itself
	}
	if start >= full.to {
		return ""
	}
	return d.TextBetween(start, full.to)
}
