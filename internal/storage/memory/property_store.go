package memory

import (
	"context"
	"sync"
)

// PropertyStore is a durable-looking key/value map for development.
type PropertyStore struct {
	mu    sync.RWMutex
	items map[string]string
}

// NewPropertyStore constructs a PropertyStore.
func NewPropertyStore() *PropertyStore {
	return &PropertyStore{items: make(map[string]string)}
}

// Set stores value under key.
func (s *PropertyStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
	return nil
}

// Get returns the stored value, or "" when absent.
func (s *PropertyStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items[key], nil
}

// Delete removes key if present.
func (s *PropertyStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}
