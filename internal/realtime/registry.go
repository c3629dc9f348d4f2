package realtime

import "sync"

// Registry maps a user to the single live connection that reaches them. It is
// the only record of who is online in this process and is never persisted.
//
// Handles stored in the registry must be comparable (pointer types in practice)
// so that Release can tell a superseded connection from its replacement.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Conn)}
}

// Register maps userID to conn, replacing any prior mapping. The displaced
// handle, if any, is returned so the caller can close it.
func (r *Registry) Register(userID string, conn Conn) Conn {
	r.mu.Lock()
	previous := r.conns[userID]
	r.conns[userID] = conn
	r.mu.Unlock()
	return previous
}

// Deregister removes the mapping for userID. Missing entries are ignored.
func (r *Registry) Deregister(userID string) {
	r.mu.Lock()
	delete(r.conns, userID)
	r.mu.Unlock()
}

// Release removes the mapping for userID only while it still points at conn.
// It reports whether the entry was removed; false means the user is either
// already gone or has reconnected on a newer handle.
func (r *Registry) Release(userID string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.conns[userID]
	if !ok || current != conn {
		return false
	}
	delete(r.conns, userID)
	return true
}

// Lookup returns the live connection for userID. A miss means the user is offline.
func (r *Registry) Lookup(userID string) (Conn, bool) {
	r.mu.RLock()
	conn, ok := r.conns[userID]
	r.mu.RUnlock()
	return conn, ok
}

// IsOnline reports whether userID has a registered connection.
func (r *Registry) IsOnline(userID string) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// Count returns the number of users currently online.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
