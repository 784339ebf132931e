package memory

import (
	"context"
	"sync"

	"github.com/clanforge/headhunter/internal/recruit"
)

// RosterStore holds the recruit pool in memory.
type RosterStore struct {
	mu   sync.RWMutex
	rows []recruit.Candidate
}

// NewRosterStore constructs a RosterStore.
func NewRosterStore() *RosterStore {
	return &RosterStore{}
}

// Load returns a copy of the stored pool.
func (s *RosterStore) Load(_ context.Context) ([]recruit.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]recruit.Candidate, len(s.rows))
	copy(out, s.rows)
	return out, nil
}

// Replace swaps the full pool contents.
func (s *RosterStore) Replace(_ context.Context, pool []recruit.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = make([]recruit.Candidate, len(pool))
	copy(s.rows, pool)
	return nil
}
