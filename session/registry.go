package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/Ireoo/autotalk.core/wsproto"
)

// Registry maps session id to Session. Reads (scheduler enumeration, lookup
// on ingest) vastly outnumber writes (accept, drop), so it is guarded by a
// plain RWMutex rather than anything fancier.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry returns an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Register creates a fresh Session around conn with a newly generated id and
// adds it to the registry. Per spec.md §9, ids are never reused across
// reconnects: every successful upgrade gets a new one.
func (r *Registry) Register(conn *wsproto.Conn) *Session {
	s := New(uuid.NewString(), conn)
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s
}

// Get looks up a session by id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove deletes a session from the registry. Callers are responsible for
// only removing sessions that are Closed and not in-flight (§3 Lifecycle).
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Snapshot returns the sessions currently registered. The order is Go's map
// iteration order: it is not insertion order and can differ between calls.
// Callers that need a fixed order sort by ID themselves.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Len reports how many sessions are currently registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Reap removes every Closed session with no in-flight decode, releasing its
// buffer. It is called periodically by the Connection Manager's background
// sweep (§4.2).
func (r *Registry) Reap() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, s := range r.sessions {
		if s.State() == Closed && !s.Inflight() {
			s.Clear()
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}
