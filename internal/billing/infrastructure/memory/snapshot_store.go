package memory

import (
	"context"
	"errors"
	"sync"
)

// SnapshotStore is an in-memory snapshot store.
type SnapshotStore struct {
	mu    sync.RWMutex
	data  map[string][]byte
	saves int
}

// NewSnapshotStore constructs a store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{data: make(map[string][]byte)}
}

// Load returns a copy of the snapshot stored under key, or nil.
func (s *SnapshotStore) Load(ctx context.Context, key string) ([]byte, error) {
	_ = ctx
	if key == "" {
		return nil, errors.New("memory snapshot store: empty key")
	}
	s.mu.RLock()
	data := s.data[key]
	s.mu.RUnlock()
	if data == nil {
		return nil, nil
	}
	return append([]byte(nil), data...), nil
}

// Save overwrites the snapshot stored under key.
func (s *SnapshotStore) Save(ctx context.Context, key string, data []byte) error {
	_ = ctx
	if key == "" {
		return errors.New("memory snapshot store: empty key")
	}
	copied := append([]byte(nil), data...)
	s.mu.Lock()
	s.data[key] = copied
	s.saves++
	s.mu.Unlock()
	return nil
}

// Put seeds raw bytes under key without counting a save.
func (s *SnapshotStore) Put(key string, data []byte) {
	s.mu.Lock()
	s.data[key] = append([]byte(nil), data...)
	s.mu.Unlock()
}

// Saves returns how many times Save succeeded.
func (s *SnapshotStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
