package protocol

import (
	"fmt"
)

// TaskChunk is a contiguous range [Begin, End) of the logical input or
// output sequence, together with its payload. It is the unit exchanged
// between pipeline stages and over the wire.
type TaskChunk[T any] struct {
	OwnerID int `json:"owner_id"`
	Begin   int `json:"begin"`
	End     int `json:"end"`
	Payload []T `json:"payload"`
}

// NewTaskChunk builds an outgoing chunk for worker owner covering
// src[begin:end]. The payload aliases src; callers must not mutate the
// source range while the chunk is in flight.
func NewTaskChunk[T any](owner, begin, end int, src []T) *TaskChunk[T] {
	return &TaskChunk[T]{
		OwnerID: owner,
		Begin:   begin,
		End:     end,
		Payload: src[begin:end:end],
	}
}

// ResultFor allocates the result chunk for in: owner and range are copied,
// the payload is a zeroed slice of the same length.
func ResultFor[Out, In any](in *TaskChunk[In]) *TaskChunk[Out] {
	return &TaskChunk[Out]{
		OwnerID: in.OwnerID,
		Begin:   in.Begin,
		End:     in.End,
		Payload: make([]Out, in.End-in.Begin),
	}
}

// Len returns the number of elements covered by the chunk range.
func (c *TaskChunk[T]) Len() int {
	return c.End - c.Begin
}

// Validate checks the chunk invariants. A negative total skips the upper
// bound check.
func (c *TaskChunk[T]) Validate(total int) error {
	if c.Begin < 0 || c.Begin > c.End {
		return fmt.Errorf("%w: range [%d, %d)", ErrInvalidChunk, c.Begin, c.End)
	}

	if total >= 0 && c.End > total {
		return fmt.Errorf("%w: range [%d, %d) exceeds %d elements", ErrInvalidChunk, c.Begin, c.End, total)
	}

	if len(c.Payload) != c.End-c.Begin {
		return fmt.Errorf("%w: payload has %d elements, range needs %d",
			ErrInvalidChunk, len(c.Payload), c.End-c.Begin)
	}

	return nil
}

func (c *TaskChunk[T]) String() string {
	return fmt.Sprintf("chunk{owner=%d [%d,%d)}", c.OwnerID, c.Begin, c.End)
}
