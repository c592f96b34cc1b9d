package storage

import (
	"fmt"
	"slices"
	"sync"
)

// MemoryBackend keeps everything in maps. Nothing survives Close.
type MemoryBackend struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		buckets: make(map[string]map[string][]byte),
	}
}

func (m *MemoryBackend) CreateBucket(name []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.buckets[string(name)]; !ok {
		m.buckets[string(name)] = make(map[string][]byte)
	}

	return nil
}

func (m *MemoryBackend) Put(bucket, key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bkt, ok := m.buckets[string(bucket)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrBucketNotFound, bucket)
	}

	bkt[string(key)] = slices.Clone(value)

	return nil
}

func (m *MemoryBackend) Get(bucket, key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bkt, ok := m.buckets[string(bucket)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBucketNotFound, bucket)
	}

	value, ok := bkt[string(key)]
	if !ok {
		return nil, nil
	}

	return slices.Clone(value), nil
}

// ForEach iterates over a snapshot so fn may write to the backend.
func (m *MemoryBackend) ForEach(bucket []byte, fn func(k, v []byte) error) error {
	m.mu.RLock()
	bkt, ok := m.buckets[string(bucket)]
	if !ok {
		m.mu.RUnlock()
		return fmt.Errorf("%w: %s", ErrBucketNotFound, bucket)
	}

	keys := make([]string, 0, len(bkt))
	values := make(map[string][]byte, len(bkt))
	for k, v := range bkt {
		keys = append(keys, k)
		values[k] = v
	}
	m.mu.RUnlock()

	slices.Sort(keys)

	for _, k := range keys {
		if err := fn([]byte(k), values[k]); err != nil {
			return err
		}
	}

	return nil
}

func (m *MemoryBackend) Close() error {
	return nil
}
