// Package memory provides in-memory store implementations for development
// and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/clanforge/headhunter/internal/recruit"
)

type cacheItem struct {
	value   string
	expires time.Time
}

// CacheStore is a TTL key/value cache backed by a map.
type CacheStore struct {
	mu    sync.RWMutex
	items map[string]cacheItem
	clock recruit.Clock
}

// NewCacheStore constructs a CacheStore using the given clock for expiry.
func NewCacheStore(clock recruit.Clock) *CacheStore {
	return &CacheStore{
		items: make(map[string]cacheItem),
		clock: clock,
	}
}

// Put stores value under key for ttl.
func (s *CacheStore) Put(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = cacheItem{value: value, expires: s.clock.Now().Add(ttl)}
	return nil
}

// Get returns the stored value, or "" when absent or expired.
func (s *CacheStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[key]
	if !ok || s.clock.Now().After(item.expires) {
		return "", nil
	}
	return item.value, nil
}

// Remove deletes key if present.
func (s *CacheStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}
