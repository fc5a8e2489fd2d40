package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by facade lookups for ids that are not part of
	// the snapshot.
	ErrNotFound = errors.New("not found")

	// ErrReferentialIntegrity signals a graph that violates a construction
	// invariant (dangling edge endpoint, duplicate id, disconnected path).
	// It always indicates a bug in the pipeline, never bad input, and the
	// offending batch is not committed.
	ErrReferentialIntegrity = errors.New("referential integrity violation")

	// ErrSessionClosed is returned when evidence arrives for a session that
	// has been closed or cancelled.
	ErrSessionClosed = errors.New("session closed")

	errEmptyEvidence = errors.New("evidence has no text")
)

// ExtractionFailure records why a single evidence item could not be turned
// into nodes and edges. Failures are logged and skipped; they never abort
// the batch that contains them.
type ExtractionFailure struct {
	EvidenceID string
	Err        error
}

func (f *ExtractionFailure) Error() string {
	return fmt.Sprintf("extraction failed for evidence %s: %v", f.EvidenceID, f.Err)
}

func (f *ExtractionFailure) Unwrap() error {
	return f.Err
}

func integrityError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrReferentialIntegrity, fmt.Sprintf(format, args...))
}
