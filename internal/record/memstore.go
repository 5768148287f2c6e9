package record

import (
	"slices"
	"sync"
)

// MemoryStore implements Store using in-memory storage.
// Useful for testing and short-lived processes.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[Ref][]byte
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[Ref][]byte),
	}
}

// Has checks if an entry exists.
func (s *MemoryStore) Has(ref Ref) (bool, error) {
	if ref.IsZero() {
		return true, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.entries[ref]
	return exists, nil
}

// Get returns a copy of the entry so callers cannot mutate stored content.
func (s *MemoryStore) Get(ref Ref) ([]byte, error) {
	if data, ok := resolveZero(ref); ok {
		return data, nil
	}
	s.mu.RLock()
	data, exists := s.entries[ref]
	s.mu.RUnlock()
	if !exists {
		return nil, notFound(ref, nil)
	}
	if !ref.matches(data) {
		return nil, corrupt(ref, nil)
	}
	return slices.Clone(data), nil
}

// Put stores a copy of data. An existing entry is never replaced.
func (s *MemoryStore) Put(data []byte) (Ref, error) {
	ref := RefOf(data)
	if ref.IsZero() {
		return ref, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[ref]; !exists {
		s.entries[ref] = slices.Clone(data)
	}
	return ref, nil
}

// Delete removes an entry.
func (s *MemoryStore) Delete(ref Ref) error {
	s.mu.Lock()
	delete(s.entries, ref)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
