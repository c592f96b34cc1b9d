package master

import "errors"

var (
	// ErrInvalidSchedule is returned for worker counts, chunk sizes or
	// output buffers a run cannot start with.
	ErrInvalidSchedule = errors.New("invalid schedule")
	// ErrInvalidResult marks a result that was never assigned or came back twice.
	ErrInvalidResult = errors.New("invalid result")
	// ErrIncomplete is returned when every input stream ended before every
	// element was processed.
	ErrIncomplete = errors.New("input streams ended before the output was complete")
)
