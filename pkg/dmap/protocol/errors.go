package protocol

import "errors"

var (
	// ErrInvalidChunk marks a chunk whose range and payload disagree.
	ErrInvalidChunk = errors.New("invalid task chunk")
	// ErrFrameTooLarge is returned for payloads the length field cannot hold.
	ErrFrameTooLarge = errors.New("frame payload exceeds 32-bit length field")
	// ErrEmptyPayload is returned when a data frame would look like end-of-stream.
	ErrEmptyPayload = errors.New("empty payload collides with end-of-stream sentinel")
	// ErrUnknownCodec is returned by CodecByName.
	ErrUnknownCodec = errors.New("unknown codec")
)
