// Package lock provides named in-process locks that serialize mutations of
// shared state, such as a scan run and a bulk invite touching the same pool.
package lock

import "sync"

// Registry hands out at most one holder per lock name at a time.
type Registry struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{held: make(map[string]bool)}
}

// TryRun executes fn while holding the named lock. It returns false without
// running fn when the lock is already held.
func (r *Registry) TryRun(name string, fn func()) bool {
	r.mu.Lock()
	if r.held[name] {
		r.mu.Unlock()
		return false
	}
	r.held[name] = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.held, name)
		r.mu.Unlock()
	}()
	fn()
	return true
}

// Held reports whether the named lock is currently taken.
func (r *Registry) Held(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.held[name]
}
