package stt

import (
	"errors"
	"sync"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrDuplicateSession = errors.New("session already registered")
	ErrSessionLimit     = errors.New("too many concurrent sessions")
)

// Registry maps session ids to live relay sessions. It is the only shared
// mutable state in the relay: chunk, stop, and provider-initiated close may
// all touch it concurrently for the same id.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	max      int
}

// NewRegistry creates a registry holding at most max sessions.
// max <= 0 means unbounded.
func NewRegistry(max int) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		max:      max,
	}
}

func (r *Registry) Register(id string, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; ok {
		return ErrDuplicateSession
	}
	if r.max > 0 && len(r.sessions) >= r.max {
		return ErrSessionLimit
	}
	r.sessions[id] = s
	return nil
}

func (r *Registry) Lookup(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Remove deregisters a session. It is idempotent so an explicit stop and a
// provider-initiated close can race without a double-free or dangling entry.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.sessions[id]
	delete(r.sessions, id)
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
