package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrBucketNotFound is returned for operations on a bucket never created.
	ErrBucketNotFound = errors.New("bucket not found")
	// ErrUnknownBackend is returned by Open for an unrecognised kind.
	ErrUnknownBackend = errors.New("unknown storage backend")
)

// Backend names accepted by Open.
const (
	KindNone   = "none"
	KindMemory = "memory"
	KindBbolt  = "bbolt"
)

// Backend is a bucketed key-value store working on raw bytes.
type Backend interface {
	// CreateBucket is idempotent.
	CreateBucket(name []byte) error

	Put(bucket, key, value []byte) error
	// Get returns nil, nil for a missing key.
	Get(bucket, key []byte) ([]byte, error)
	// ForEach visits the bucket in ascending key order.
	ForEach(bucket []byte, fn func(k, v []byte) error) error

	Close() error
}

// Open returns the backend named by kind. KindNone (or "") returns nil.
func Open(kind, path string) (Backend, error) {
	switch kind {
	case "", KindNone:
		return nil, nil
	case KindMemory:
		return NewMemoryBackend(), nil
	case KindBbolt:
		if path == "" {
			return nil, fmt.Errorf("%s backend needs a path", KindBbolt)
		}
		b, err := NewBboltBackend(path)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, kind)
	}
}
