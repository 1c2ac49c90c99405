package domain

import "errors"

// Sentinel errors - use with errors.Is()
var (
	// ErrInvalidPosition indicates a transaction step referenced an offset
	// outside the document or an inverted range. Programming-error class:
	// the transaction is rejected before any step applies.
	ErrInvalidPosition = errors.New("invalid position")

	// ErrAnchorLost indicates a streaming cursor's anchor node no longer
	// exists in the document. The stream is discarded, not surfaced.
	ErrAnchorLost = errors.New("anchor lost")

	// ErrVersionNotFound indicates a version id missing from a beat's history.
	ErrVersionNotFound = errors.New("version not found")

	// ErrHistoryNotFound indicates no stored history for a beat. Reads treat
	// this as an empty result; deletes treat it as a no-op.
	ErrHistoryNotFound = errors.New("history not found")

	// ErrNotFound indicates a missing resource (beat node, document).
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("validation failed")

	// ErrStaleSession indicates a stream event arrived for a superseded
	// generation session and was discarded.
	ErrStaleSession = errors.New("stale generation session")
)

// GenerationError wraps a generation-service failure. Expected at runtime:
// surfaced inline in the document and recoverable without reloading.
type GenerationError struct {
	BeatID  string
	Message string
	Err     error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return "generation failed for beat " + e.BeatID + ": " + e.Err.Error()
	}
	return "generation failed for beat " + e.BeatID + ": " + e.Message
}

func (e *GenerationError) Unwrap() error { return e.Err }
