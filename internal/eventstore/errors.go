package eventstore

import (
	"errors"
	"fmt"
)

var (
	// ErrVersionConflict is the normalized conflict sentinel AppendEvent
	// returns when the adapter reports ErrAlreadyExists. AppendEvent and
	// PutSnapshot both start from the same create-if-absent primitive; only
	// AppendEvent surfaces the conflict, PutSnapshot treats it as success.
	ErrVersionConflict = errors.New("eventstore: version conflict")

	// ErrNotFound is returned by Get when no object exists at the key.
	ErrNotFound = errors.New("eventstore: object not found")
)

// StreamGapError is returned by LoadStream when, after the single permitted
// retry, the listed versions still are not contiguous from fromInclusive.
type StreamGapError struct {
	Expected int
	Actual   int
}

func (e *StreamGapError) Error() string {
	return fmt.Sprintf("eventstore: stream gap detected: expected version %d, got %d", e.Expected, e.Actual)
}

func (e *StreamGapError) Is(target error) bool {
	_, ok := target.(*StreamGapError)
	return ok
}
