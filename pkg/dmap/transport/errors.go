package transport

import "errors"

var (
	// ErrListen wraps a failure to bind the receiver's address.
	ErrListen = errors.New("listen failed")
	// ErrConnectFailed is returned once every dial attempt has failed.
	ErrConnectFailed = errors.New("connect retries exhausted")
	// ErrMalformedFrame marks a payload that does not decode.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrEncodeFailed marks an outgoing chunk that cannot be put on the wire.
	ErrEncodeFailed = errors.New("encode failed")
)
