package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// MemStore keeps objects in a process-local map. Used in tests and for
// single-node deployments where exports are short-lived anyway.
type MemStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemStore creates an empty in-memory backend.
func NewMemStore() *MemStore {
	return &MemStore{objects: make(map[string][]byte)}
}

func (s *MemStore) Provider() string { return "memory" }

func (s *MemStore) Put(_ context.Context, handle string, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	s.mu.Lock()
	s.objects[handle] = cp
	s.mu.Unlock()
	return nil
}

func (s *MemStore) Get(_ context.Context, handle string) ([]byte, error) {
	s.mu.RLock()
	data, ok := s.objects[handle]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: handle not found: %s", handle)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (s *MemStore) Open(ctx context.Context, handle string) (io.ReadCloser, error) {
	data, err := s.Get(ctx, handle)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemStore) Delete(_ context.Context, handle string) error {
	s.mu.Lock()
	delete(s.objects, handle)
	s.mu.Unlock()
	return nil
}

// Len reports the number of stored objects. Test helper.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
