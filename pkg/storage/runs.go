package storage

import (
	"fmt"

	"pkg.jsn.cam/dmap/pkg/dmap/protocol"
)

var runsBucket = []byte("runs")

// RunStore journals one record per finished run, keyed by run id.
type RunStore struct {
	backend Backend
	codec   protocol.Codec
}

// NewRunStore prepares backend for journaling. A nil codec stores records
// as JSON.
func NewRunStore(backend Backend, codec protocol.Codec) (*RunStore, error) {
	if codec == nil {
		codec = protocol.NewSonicCodec()
	}

	if err := backend.CreateBucket(runsBucket); err != nil {
		return nil, fmt.Errorf("create runs bucket: %w", err)
	}

	return &RunStore{backend: backend, codec: codec}, nil
}

// OpenRunStore opens the backend named by kind and wraps it. It returns
// nil, nil for KindNone.
func OpenRunStore(kind, path string) (*RunStore, error) {
	backend, err := Open(kind, path)
	if err != nil || backend == nil {
		return nil, err
	}

	s, err := NewRunStore(backend, nil)
	if err != nil {
		backend.Close()
		return nil, err
	}

	return s, nil
}

// Record encodes run and stores it under id, replacing any earlier record.
func (s *RunStore) Record(id string, run any) error {
	data, err := s.codec.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", id, err)
	}

	return s.backend.Put(runsBucket, []byte(id), data)
}

// Lookup decodes the record stored under id into run.
func (s *RunStore) Lookup(id string, run any) (bool, error) {
	data, err := s.backend.Get(runsBucket, []byte(id))
	if err != nil || data == nil {
		return false, err
	}

	if err := s.codec.Unmarshal(data, run); err != nil {
		return false, fmt.Errorf("decode run %s: %w", id, err)
	}

	return true, nil
}

// IDs lists the recorded run ids in key order.
func (s *RunStore) IDs() ([]string, error) {
	var ids []string

	err := s.backend.ForEach(runsBucket, func(k, _ []byte) error {
		ids = append(ids, string(k))
		return nil
	})

	return ids, err
}

func (s *RunStore) Close() error {
	return s.backend.Close()
}
