// Package memory provides in-process state providers for development
// and tests.
package memory

import (
	"context"
	"strings"
	"sync"
)

// Store is a map-backed state.Store. Values are copied on the way in
// and out so callers cannot alias the internal map.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Get returns the value at key and whether the key exists.
func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

// Put writes value at key.
func (s *Store) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	in := make([]byte, len(value))
	copy(in, value)
	s.data[key] = in
	return nil
}

// PutIfAbsent writes value only when key is absent and reports whether
// this call created it.
func (s *Store) PutIfAbsent(_ context.Context, key string, value []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	in := make([]byte, len(value))
	copy(in, value)
	s.data[key] = in
	return true, nil
}

// Delete removes key. Absent keys are ignored.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// DeletePrefix removes every key under prefix and returns the count.
func (s *Store) DeletePrefix(_ context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for key := range s.data {
		if strings.HasPrefix(key, prefix) {
			delete(s.data, key)
			deleted++
		}
	}
	return deleted, nil
}

// List returns every key under prefix with its value.
func (s *Store) List(_ context.Context, prefix string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]byte)
	for key, value := range s.data {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		v := make([]byte, len(value))
		copy(v, value)
		out[key] = v
	}
	return out, nil
}

// Len reports how many keys the store holds.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Close satisfies state.Store.
func (s *Store) Close() error { return nil }
