package core

import (
	"sort"
	"strings"
	"sync"
)

// Registry is the authoritative map of connected identities. Every lookup and
// mutation happens under one mutex so check-then-act sequences stay atomic.
type Registry struct {
	mu       sync.RWMutex
	sessions map[Identity]*Session
	capacity int
}

// NewRegistry creates an empty registry admitting at most capacity sessions.
// A non-positive capacity means unlimited.
func NewRegistry(capacity int) *Registry {
	return &Registry{
		sessions: make(map[Identity]*Session),
		capacity: capacity,
	}
}

// Capacity returns the configured admission limit.
func (r *Registry) Capacity() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.capacity
}

// SetCapacity changes the admission limit. Existing sessions are not evicted.
func (r *Registry) SetCapacity(capacity int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capacity = capacity
}

// Full reports whether no further session can be admitted.
func (r *Registry) Full() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fullLocked()
}

func (r *Registry) fullLocked() bool {
	return r.capacity > 0 && len(r.sessions) >= r.capacity
}

// Admit inserts s unless the registry is full or the identity already has a
// live session. The checks and the insert form a single critical section.
func (r *Registry) Admit(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.fullLocked() {
		return ErrCapacity
	}
	if _, exists := r.sessions[s.Identity]; exists {
		return ErrConflict
	}
	r.sessions[s.Identity] = s
	return nil
}

// Remove deletes s. A newer session registered under the same identity is left alone.
func (r *Registry) Remove(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[s.Identity]
	if !ok || current != s {
		return false
	}
	delete(r.sessions, s.Identity)
	return true
}

// Has reports whether id currently has a live session.
func (r *Registry) Has(id Identity) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[id]
	return ok
}

// Get returns the live session for id.
func (r *Registry) Get(id Identity) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// FindByName returns the first session whose display name matches, case-insensitively.
func (r *Registry) FindByName(name string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return nil, false
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns the live sessions ordered by connection time.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

// Broadcast queues line on every session except the one for except.
// The lock is held only while taking the snapshot; sends happen outside it.
func (r *Registry) Broadcast(line string, except *Session) int {
	delivered := 0
	for _, s := range r.Snapshot() {
		if s == except {
			continue
		}
		if s.Send(line) {
			delivered++
		}
	}
	return delivered
}

// DrainAll removes every session in one critical section and returns them.
func (r *Registry) DrainAll() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		out = append(out, s)
		delete(r.sessions, id)
	}
	return out
}
