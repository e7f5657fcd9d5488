// Package session owns the pipeline session lifecycle: the run loop over a
// deal's document queue, the pause for blocking clarifications, and resume.
package session

import (
	"sync"
	"time"

	"github.com/sells-group/intake-cli/internal/model"
)

// Session is the live, mutable state of one pipeline run. All access goes
// through its mutex; everything handed outward is a snapshot copy.
type Session struct {
	mu sync.Mutex

	id        string
	dealID    string
	queue     []model.DocumentRef
	cursor    int
	status    model.SessionStatus
	results   map[string]*model.ExtractionResult
	errMsg    string
	createdAt time.Time
	updatedAt time.Time
}

func newSession(id, dealID string, queue []model.DocumentRef) *Session {
	now := time.Now().UTC()
	return &Session{
		id:        id,
		dealID:    dealID,
		queue:     queue,
		status:    model.StatusRunning,
		results:   make(map[string]*model.ExtractionResult, len(queue)),
		createdAt: now,
		updatedAt: now,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// next returns the document at the cursor without advancing it. ok is false
// when the queue is exhausted.
func (s *Session) next() (doc model.DocumentRef, idx int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor >= len(s.queue) {
		return model.DocumentRef{}, 0, false
	}
	return s.queue[s.cursor], s.cursor, true
}

// recordResult stores a document's result and advances the cursor. The cursor
// only ever moves forward; a document is never re-dispatched.
func (s *Session) recordResult(r *model.ExtractionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[r.DocumentID] = r
	s.cursor++
	s.updatedAt = time.Now().UTC()
}

func (s *Session) setStatus(status model.SessionStatus, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.errMsg = errMsg
	s.updatedAt = time.Now().UTC()
}

// Status returns the current lifecycle state.
func (s *Session) Status() model.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Snapshot copies the session into a read-only view. Result pointers are
// shared; results are immutable once recorded.
func (s *Session) Snapshot() *model.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue := make([]model.DocumentRef, len(s.queue))
	copy(queue, s.queue)
	results := make(map[string]*model.ExtractionResult, len(s.results))
	for k, v := range s.results {
		results[k] = v
	}

	snap := &model.SessionSnapshot{
		ID:            s.id,
		DealID:        s.dealID,
		DocumentQueue: queue,
		Cursor:        s.cursor,
		Status:        s.status,
		Results:       results,
		Error:         s.errMsg,
		CreatedAt:     s.createdAt,
		UpdatedAt:     s.updatedAt,
	}
	snap.CountResults()
	return snap
}
