package kv

import (
	"context"
	"sync"
)

// MemoryStore provides an in-memory implementation useful for testing and local development.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]map[string]string
}

// NewMemoryStore constructs an empty memory-backed store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]map[string]string)}
}

// Get implements the Storage interface.
func (s *MemoryStore) Get(_ context.Context, namespace, key string) (string, error) {
	if err := validate(namespace, key); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.values[namespace][key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

// Set implements the Storage interface.
func (s *MemoryStore) Set(_ context.Context, namespace, key, value string) error {
	if err := validate(namespace, key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.values[namespace]
	if !ok {
		ns = make(map[string]string)
		s.values[namespace] = ns
	}
	ns[key] = value
	return nil
}

// Delete implements the Storage interface.
func (s *MemoryStore) Delete(_ context.Context, namespace, key string) error {
	if err := validate(namespace, key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.values[namespace]
	if !ok {
		return nil
	}
	delete(ns, key)
	if len(ns) == 0 {
		delete(s.values, namespace)
	}
	return nil
}

// Keys lists the keys stored in namespace. Intended for diagnostics and tests.
func (s *MemoryStore) Keys(namespace string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.values[namespace]))
	for key := range s.values[namespace] {
		out = append(out, key)
	}
	return out
}
