package protocol

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/bytedance/sonic"
)

// Codec names accepted by CodecByName.
const (
	CodecGob   = "gob"
	CodecSonic = "sonic"
)

// Codec turns structured records into bytes and back. Encodings must be
// stable across machines and never empty.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// GobCodec is a lossless binary encoding: strings keep their exact bytes and
// floats their exact bits, NaN and infinities included. Every frame is a
// self-contained gob stream carrying its own type description. Struct types
// need at least one exported field.
type GobCodec struct{}

func (GobCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (GobCodec) Unmarshal(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func (GobCodec) Name() string {
	return CodecGob
}

// SonicCodec encodes with sonic in encoding/json compatible mode. JSON has
// no NaN or infinity and replaces invalid UTF-8, so it suits records such as
// the run journal rather than arbitrary element values.
type SonicCodec struct {
	api sonic.API
}

func NewSonicCodec() *SonicCodec {
	return &SonicCodec{api: sonic.ConfigStd}
}

func (c *SonicCodec) Marshal(v any) ([]byte, error) {
	return c.api.Marshal(v)
}

func (c *SonicCodec) Unmarshal(data []byte, v any) error {
	return c.api.Unmarshal(data, v)
}

func (c *SonicCodec) Name() string {
	return CodecSonic
}

// DefaultCodec returns the codec used when none is configured.
func DefaultCodec() Codec {
	return GobCodec{}
}

// CodecByName returns the codec registered under name; "" is the default.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", CodecGob:
		return GobCodec{}, nil
	case CodecSonic:
		return NewSonicCodec(), nil
	default:
		return nil, fmt.Errorf("%w: %q, expected %s or %s", ErrUnknownCodec, name, CodecGob, CodecSonic)
	}
}

// EncodeChunk serializes a chunk with codec.
func EncodeChunk[T any](codec Codec, c *TaskChunk[T]) ([]byte, error) {
	return codec.Marshal(c)
}

// DecodeChunk deserializes a chunk and checks its invariants.
func DecodeChunk[T any](codec Codec, data []byte) (*TaskChunk[T], error) {
	var c TaskChunk[T]
	if err := codec.Unmarshal(data, &c); err != nil {
		return nil, err
	}

	// Empty payloads may decode as nil (JSON null, gob omits empty slices).
	if c.Payload == nil && c.End == c.Begin {
		c.Payload = []T{}
	}

	if err := c.Validate(-1); err != nil {
		return nil, err
	}

	return &c, nil
}
