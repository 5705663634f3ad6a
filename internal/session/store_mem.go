package session

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemStore is a concurrency-safe, in-memory Store. The now function is
// injectable for deterministic tests.
type MemStore struct {
	mu    sync.RWMutex
	blobs map[string]memBlob
	now   func() time.Time
}

type memBlob struct {
	data      []byte
	updatedAt time.Time
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		blobs: make(map[string]memBlob),
		now:   time.Now,
	}
}

// Load implements Store.
func (s *MemStore) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(b.data), nil
}

// Save implements Store.
func (s *MemStore) Save(_ context.Context, key string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = memBlob{data: slices.Clone(blob), updatedAt: s.now()}
	return nil
}

// Delete implements Store.
func (s *MemStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}

// List implements Store. Entries are sorted by key.
func (s *MemStore) List(_ context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.blobs))
	for k, b := range s.blobs {
		out = append(out, Entry{Key: k, UpdatedAt: b.updatedAt})
	}
	slices.SortFunc(out, func(a, b Entry) int {
		switch {
		case a.Key < b.Key:
			return -1
		case a.Key > b.Key:
			return 1
		}
		return 0
	})
	return out, nil
}

var _ Store = (*MemStore)(nil)
