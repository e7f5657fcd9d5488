// Package progress distributes per-session pipeline events to observers.
//
// Each session gets one emitter, created at session start. Publishing never
// blocks the execution loop: every subscriber has its own buffered channel,
// and when a subscriber falls behind the oldest buffered event is dropped to
// make room (drop-oldest policy). Events arrive in publish order from the
// moment of subscription; there is no historical replay.
package progress

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/intake-cli/internal/model"
)

// ErrNoEmitter is returned when subscribing to a session id the bridge has
// never seen (or whose emitter was removed after eviction).
var ErrNoEmitter = eris.New("progress: no emitter for session")

// DefaultBufferSize is the per-subscriber channel depth when none is given.
const DefaultBufferSize = 256

// Subscription is one observer's handle on a session's event stream. C is
// closed when the session reaches a terminal state or the subscription is
// cancelled.
type Subscription struct {
	C <-chan model.ProgressEvent

	id      string
	ch      chan model.ProgressEvent
	dropped atomic.Int64
	cancel  func()
	once    sync.Once
}

// Dropped returns how many events this subscriber lost to backpressure.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Cancel detaches the subscription and closes its channel. Safe to call more
// than once and after bridge close.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

type emitter struct {
	mu     sync.Mutex
	subs   map[string]*Subscription
	closed bool
}

// Bridge is the process-wide registry of per-session emitters.
type Bridge struct {
	mu       sync.RWMutex
	emitters map[string]*emitter
	bufSize  int
}

// NewBridge creates a Bridge. bufSize <= 0 selects DefaultBufferSize.
func NewBridge(bufSize int) *Bridge {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	return &Bridge{
		emitters: make(map[string]*emitter),
		bufSize:  bufSize,
	}
}

// CreateEmitter allocates the emitter for a session. Idempotent: a second
// call for the same session is a no-op.
func (b *Bridge) CreateEmitter(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.emitters[sessionID]; ok {
		return
	}
	b.emitters[sessionID] = &emitter{subs: make(map[string]*Subscription)}
}

// Publish fans an event out to the session's subscribers. It never blocks:
// a full subscriber buffer drops its oldest event first. Publishing to an
// unknown or closed session is a no-op.
func (b *Bridge) Publish(sessionID string, ev model.ProgressEvent) {
	b.mu.RLock()
	em := b.emitters[sessionID]
	b.mu.RUnlock()
	if em == nil {
		return
	}

	em.mu.Lock()
	defer em.mu.Unlock()
	if em.closed {
		return
	}

	for _, sub := range em.subs {
		select {
		case sub.ch <- ev:
			continue
		default:
		}
		// Buffer full: drop the oldest event, then retry once. The second
		// send can only fail if the subscriber consumed in between, in which
		// case there is room anyway.
		select {
		case <-sub.ch:
			sub.dropped.Add(1)
		default:
		}
		select {
		case sub.ch <- ev:
		default:
			sub.dropped.Add(1)
		}
	}
}

// Subscribe attaches a new observer to a session's stream. Subscribing to a
// session whose emitter is already closed returns a subscription with an
// already-closed channel, so observers of finished sessions terminate
// cleanly.
func (b *Bridge) Subscribe(sessionID string) (*Subscription, error) {
	b.mu.RLock()
	em := b.emitters[sessionID]
	b.mu.RUnlock()
	if em == nil {
		return nil, eris.Wrapf(ErrNoEmitter, "session %s", sessionID)
	}

	ch := make(chan model.ProgressEvent, b.bufSize)
	sub := &Subscription{C: ch, ch: ch, id: uuid.New().String()}

	em.mu.Lock()
	defer em.mu.Unlock()
	if em.closed {
		close(ch)
		sub.cancel = func() {}
		return sub, nil
	}

	em.subs[sub.id] = sub
	sub.cancel = func() {
		em.mu.Lock()
		defer em.mu.Unlock()
		if _, ok := em.subs[sub.id]; !ok {
			return
		}
		delete(em.subs, sub.id)
		close(ch)
	}
	return sub, nil
}

// Close marks a session's emitter closed and closes all subscriber channels.
// Later publishes are no-ops. Idempotent.
func (b *Bridge) Close(sessionID string) {
	b.mu.RLock()
	em := b.emitters[sessionID]
	b.mu.RUnlock()
	if em == nil {
		return
	}

	em.mu.Lock()
	defer em.mu.Unlock()
	if em.closed {
		return
	}
	em.closed = true
	for id, sub := range em.subs {
		delete(em.subs, id)
		close(sub.ch)
		if n := sub.Dropped(); n > 0 {
			zap.L().Debug("progress: subscriber lost events to backpressure",
				zap.String("session_id", sessionID),
				zap.Int64("dropped", n),
			)
		}
	}
}

// Remove deletes a session's emitter entirely. Called by registry eviction
// after the terminal-state inactivity window.
func (b *Bridge) Remove(sessionID string) {
	b.Close(sessionID)
	b.mu.Lock()
	delete(b.emitters, sessionID)
	b.mu.Unlock()
}
