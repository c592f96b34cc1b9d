package storage

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BboltBackend persists buckets in a single bbolt file.
type BboltBackend struct {
	db *bolt.DB
}

// NewBboltBackend opens (or creates) the database at path. It gives up after
// a second if another process holds the file lock.
func NewBboltBackend(path string) (*BboltBackend, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt database %s: %w", path, err)
	}

	return &BboltBackend{db: db}, nil
}

func (b *BboltBackend) CreateBucket(name []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(name)
		return err
	})
}

func (b *BboltBackend) Put(bucket, key, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucket)
		if bkt == nil {
			return fmt.Errorf("%w: %s", ErrBucketNotFound, bucket)
		}
		return bkt.Put(key, value)
	})
}

func (b *BboltBackend) Get(bucket, key []byte) ([]byte, error) {
	var value []byte

	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucket)
		if bkt == nil {
			return fmt.Errorf("%w: %s", ErrBucketNotFound, bucket)
		}

		// Only valid for the lifetime of the transaction.
		if v := bkt.Get(key); v != nil {
			value = append([]byte(nil), v...)
		}

		return nil
	})

	return value, err
}

// ForEach runs fn inside a read transaction; fn must not write to b.
func (b *BboltBackend) ForEach(bucket []byte, fn func(k, v []byte) error) error {
	return b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucket)
		if bkt == nil {
			return fmt.Errorf("%w: %s", ErrBucketNotFound, bucket)
		}
		return bkt.ForEach(fn)
	})
}

func (b *BboltBackend) Close() error {
	return b.db.Close()
}
