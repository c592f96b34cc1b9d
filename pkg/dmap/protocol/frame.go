package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net"
)

// HeaderSize is the encoded size of a frame header: a 4-byte environment
// flag followed by a 4-byte payload length, both big-endian.
//
// The length field is 32 bits wide. Payloads above math.MaxUint32 bytes
// cannot be framed and are rejected instead of being truncated.
const HeaderSize = 8

// Header precedes every frame on a connection.
type Header struct {
	IsEnvironment bool
	Length        uint32
}

// IsEndOfStream reports whether the header is the end-of-stream sentinel.
// Any zero-length frame ends the stream; codecs never produce empty payloads.
func (h Header) IsEndOfStream() bool {
	return h.Length == 0
}

// Encode writes the header into b, which must hold HeaderSize bytes.
func (h Header) Encode(b []byte) {
	var flag uint32
	if h.IsEnvironment {
		flag = 1
	}

	binary.BigEndian.PutUint32(b[0:4], flag)
	binary.BigEndian.PutUint32(b[4:8], h.Length)
}

// DecodeHeader parses a header from the first HeaderSize bytes of b.
func DecodeHeader(b []byte) Header {
	return Header{
		IsEnvironment: binary.BigEndian.Uint32(b[0:4]) != 0,
		Length:        binary.BigEndian.Uint32(b[4:8]),
	}
}

// ReadFrame reads one header and, unless it is the end-of-stream sentinel,
// exactly Length payload bytes. A clean close before the header returns
// io.EOF; a close inside a frame returns io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader) (Header, []byte, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Header{}, nil, err
	}

	h := DecodeHeader(hdr[:])
	if h.IsEndOfStream() {
		return h, nil, nil
	}

	payload := make([]byte, h.Length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return h, nil, fmt.Errorf("read payload (%d bytes): %w", h.Length, err)
	}

	return h, payload, nil
}

// WriteFrame writes header and payload with one vectored write. Short
// writes are continued until the whole frame is out or an error occurs.
func WriteFrame(w io.Writer, isEnvironment bool, payload []byte) error {
	if len(payload) == 0 {
		return ErrEmptyPayload
	}

	if uint64(len(payload)) > math.MaxUint32 {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}

	var hdr [HeaderSize]byte
	Header{IsEnvironment: isEnvironment, Length: uint32(len(payload))}.Encode(hdr[:])

	bufs := net.Buffers{hdr[:], payload}
	_, err := bufs.WriteTo(w)

	return err
}

// WriteEndOfStream writes the zero-length sentinel frame.
func WriteEndOfStream(w io.Writer) error {
	var hdr [HeaderSize]byte
	Header{}.Encode(hdr[:])

	bufs := net.Buffers{hdr[:]}
	_, err := bufs.WriteTo(w)

	return err
}
