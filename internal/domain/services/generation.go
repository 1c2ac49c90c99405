package services

import (
	"context"

	"inkwell/internal/schema"
)

// GenerationProvider is the black-box streaming text-generation service the
// beat engine consumes. This abstraction allows supporting multiple providers
// (Anthropic, offline lorem, test doubles) behind one interface.
type GenerationProvider interface {
	// Stream starts a generation and returns a channel of events. The channel
	// is closed after a terminal event (completion or error) is delivered.
	// Cancelling ctx releases the underlying request.
	Stream(ctx context.Context, req *GenerateRequest) (<-chan StreamEvent, error)

	// Name returns the provider name (e.g. "anthropic", "lorem").
	Name() string

	// SupportsModel returns true if the provider supports the given model.
	SupportsModel(model string) bool
}

// GenerateRequest carries the prompt and assembled context for one beat
// generation.
type GenerateRequest struct {
	Prompt string
	Model  string

	// BeatType controls how much surrounding context is included.
	BeatType schema.BeatType

	// WordCount is the target length for the generated prose.
	WordCount int

	// ExistingText carries the text a rewrite replaces.
	ExistingText string

	// RewriteInstruction refines a rewrite request.
	RewriteInstruction string

	// TextAfterBeat is bridging context for scene-type beats: the prose that
	// follows the generated span, so the output can lead into it.
	TextAfterBeat string

	// StoryContext is the assembled story/codex context, built by external
	// collaborators and treated as an opaque string here.
	StoryContext string
}

// StreamEventType discriminates stream events.
type StreamEventType string

const (
	EventChunk    StreamEventType = "chunk"
	EventComplete StreamEventType = "complete"
	EventError    StreamEventType = "error"
)

// StreamEvent is one event on a generation stream. Chunk events carry
// incremental text; the terminal event is either Complete or Error.
type StreamEvent struct {
	Type StreamEventType
	Text string // chunk text, or full accumulated text on Complete
	Err  error  // set on Error events
}
