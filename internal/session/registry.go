package session

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// registry is the in-memory index of live sessions.
type registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func newRegistry() *registry {
	return &registry{sessions: make(map[string]*Session)}
}

func (r *registry) put(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.id] = s
}

func (r *registry) get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *registry) list() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// sweepTerminal removes terminal sessions idle past ttl and returns their ids
// so the manager can release the attached bridge and clarification state.
func (r *registry) sweepTerminal(ttl time.Duration, now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []string
	for id, s := range r.sessions {
		s.mu.Lock()
		expired := s.status.Terminal() && now.Sub(s.updatedAt) >= ttl
		status := s.status
		s.mu.Unlock()
		if expired {
			delete(r.sessions, id)
			evicted = append(evicted, id)
			zap.L().Debug("session: evicted",
				zap.String("session_id", id),
				zap.String("status", string(status)),
			)
		}
	}
	return evicted
}
