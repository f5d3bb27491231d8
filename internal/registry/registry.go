// Package registry tracks live streaming sessions: their cookie identity
// and per-client FPS, guarded by a single mutex over a map.
package registry

import (
	"sync"
	"time"
)

// Session is one open GET /{stream-name} connection.
type Session struct {
	ClientID       string
	Key            string
	AdvanceHeaders bool
	FPS            int
	OpenedAt       time.Time
}

// Registry maps client_id to Session. Mutated by stream handlers on
// enter/exit, read by the state handler.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Register is idempotent by ClientID: if the id collides, the existing
// entry's mutable fields are overwritten rather than a second entry
// created.
func (r *Registry) Register(s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.sessions[s.ClientID]
	if !ok {
		stored := s
		r.sessions[s.ClientID] = &stored
		return
	}
	existing.Key = s.Key
	existing.AdvanceHeaders = s.AdvanceHeaders
	existing.OpenedAt = s.OpenedAt
}

// Deregister removes a session. Tolerant of missing ids.
func (r *Registry) Deregister(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, clientID)
}

// SetFPS updates a session's last observed per-second rate. No-op if the
// session is gone (e.g. deregistered concurrently).
func (r *Registry) SetFPS(clientID string, fps int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[clientID]; ok {
		s.FPS = fps
	}
}

// Size returns the number of live sessions.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Snapshot returns a consistent point-in-time copy of all live sessions,
// for the state endpoint.
func (r *Registry) Snapshot() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	return out
}
