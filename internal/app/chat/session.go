package chat

import (
	"sync"

	"convochat/internal/app/user"
)

// SessionRegistry maps live connection ids to the identity bound to them. It is the only
// source of truth for whether a connection is authenticated.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]user.Identity
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]user.Identity)}
}

// BindIfAbsent binds id to connID unless the connection already has an identity.
// It returns the identity now bound and whether this call created the binding.
func (r *SessionRegistry) BindIfAbsent(connID string, id user.Identity) (user.Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[connID]; ok {
		return existing, false
	}

	r.sessions[connID] = id
	return id, true
}

// Lookup returns the identity bound to connID.
func (r *SessionRegistry) Lookup(connID string) (user.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.sessions[connID]
	return id, ok
}

// Remove drops connID and returns the identity it had, if any.
func (r *SessionRegistry) Remove(connID string) (user.Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.sessions[connID]
	if ok {
		delete(r.sessions, connID)
	}
	return id, ok
}

// Len returns the number of authenticated connections.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}
