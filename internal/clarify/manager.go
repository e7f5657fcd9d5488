// Package clarify tracks ambiguous or low-confidence extracted fields raised
// during a pipeline session and decides whether the session may proceed.
package clarify

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/intake-cli/internal/model"
)

var (
	// ErrSessionUnknown is returned when resolving against a session the
	// manager has never seen.
	ErrSessionUnknown = eris.New("clarify: unknown session")
	// ErrClarificationUnknown is returned for an unrecognized clarification id.
	ErrClarificationUnknown = eris.New("clarify: unknown clarification")
	// ErrAlreadyResolved is returned on a second resolve of the same item.
	// Resolution is first-writer-wins; repeats fail rather than overwrite.
	ErrAlreadyResolved = eris.New("clarify: already resolved")
)

// Persister is the optional write-through store for clarification records.
// Saves happen under the manager's lock so CanProceed never observes a
// resolution before it is recorded.
type Persister interface {
	SaveClarification(ctx context.Context, c *model.Clarification) error
}

// Options configures a Manager.
type Options struct {
	// BlockingThreshold: pending items with Priority >= this block completion.
	BlockingThreshold int
	// AutoResolveThreshold: items with Priority < this whose extracted value
	// falls inside their benchmark range are auto-resolved at registration.
	AutoResolveThreshold int
	// Benchmarks maps field path to its expected range; used to attach
	// BenchmarkRange to registered items and to drive auto-resolution.
	Benchmarks map[string]Benchmark
	// Store, when non-nil, receives every insert and status change.
	Store Persister
}

// DefaultBlockingThreshold is the priority at which a pending item starts
// blocking session completion.
const DefaultBlockingThreshold = 9

type sessionItems struct {
	// byKey indexes items by documentID + "\x00" + fieldPath for idempotent
	// registration; order preserves creation sequence for stable sorting.
	byKey map[string]*model.Clarification
	byID  map[string]*model.Clarification
	order []*model.Clarification
}

// Manager is the single synchronous source of truth for clarification state.
// All methods are safe for concurrent use across sessions.
type Manager struct {
	mu   sync.Mutex
	opts Options
	sess map[string]*sessionItems
}

// NewManager creates a Manager with the given options.
func NewManager(opts Options) *Manager {
	if opts.BlockingThreshold <= 0 {
		opts.BlockingThreshold = DefaultBlockingThreshold
	}
	return &Manager{
		opts: opts,
		sess: make(map[string]*sessionItems),
	}
}

// Register upserts clarifications for a session, keyed by document id and
// field path. Re-registering an existing pending item refreshes its extracted
// value and confidence; resolved items are never resurrected. Items below the
// auto-resolve threshold whose value sits inside their benchmark range are
// resolved immediately with the extracted value kept. Returns the stored
// items (with ids assigned) in registration order.
func (m *Manager) Register(ctx context.Context, sessionID string, items []model.Clarification) []model.Clarification {
	m.mu.Lock()
	defer m.mu.Unlock()

	si := m.sess[sessionID]
	if si == nil {
		si = &sessionItems{
			byKey: make(map[string]*model.Clarification),
			byID:  make(map[string]*model.Clarification),
		}
		m.sess[sessionID] = si
	}

	out := make([]model.Clarification, 0, len(items))
	for i := range items {
		c := items[i]
		c.SessionID = sessionID
		key := c.DocumentID + "\x00" + c.FieldPath

		if existing, ok := si.byKey[key]; ok {
			if existing.Status == model.ClarificationPending {
				existing.ExtractedValue = c.ExtractedValue
				existing.ExtractedConfidence = c.ExtractedConfidence
				existing.Type = c.Type
				existing.Priority = clampPriority(c.Priority)
				existing.SuggestedValues = c.SuggestedValues
				m.persist(ctx, existing)
			}
			out = append(out, *existing)
			continue
		}

		c.ID = uuid.New().String()
		c.Status = model.ClarificationPending
		c.CreatedAt = time.Now().UTC()
		c.Priority = clampPriority(c.Priority)
		if b, ok := m.opts.Benchmarks[c.FieldPath]; ok {
			r := b.Range
			c.BenchmarkRange = &r
			if c.FieldLabel == "" {
				c.FieldLabel = b.Label
			}
		}
		m.maybeAutoResolve(&c)

		stored := c
		si.byKey[key] = &stored
		si.byID[stored.ID] = &stored
		si.order = append(si.order, &stored)
		m.persist(ctx, &stored)
		out = append(out, stored)
	}
	return out
}

// maybeAutoResolve resolves low-priority items whose extracted value falls
// inside their benchmark range, keeping the extracted value.
func (m *Manager) maybeAutoResolve(c *model.Clarification) {
	if m.opts.AutoResolveThreshold <= 0 || c.Priority >= m.opts.AutoResolveThreshold {
		return
	}
	if c.BenchmarkRange == nil {
		return
	}
	v, ok := toFloat(c.ExtractedValue)
	if !ok || !c.BenchmarkRange.Contains(v) {
		return
	}
	now := time.Now().UTC()
	c.Status = model.ClarificationAutoResolved
	c.ResolvedValue = c.ExtractedValue
	c.ResolvedBy = "system"
	c.Note = "within benchmark range"
	c.ResolvedAt = &now
}

// Pending returns a session's pending clarifications ordered by descending
// priority, then creation order.
func (m *Manager) Pending(sessionID string) []model.Clarification {
	m.mu.Lock()
	defer m.mu.Unlock()

	si := m.sess[sessionID]
	if si == nil {
		return nil
	}

	var pending []model.Clarification
	for _, c := range si.order {
		if c.Status == model.ClarificationPending {
			pending = append(pending, *c)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].Priority > pending[j].Priority
	})
	return pending
}

// Resolve transitions one pending clarification to resolved. Unknown ids and
// repeat resolutions fail; the first resolution always wins.
func (m *Manager) Resolve(ctx context.Context, sessionID, clarificationID string, value any, resolvedBy, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolveLocked(ctx, sessionID, clarificationID, value, resolvedBy, note)
}

func (m *Manager) resolveLocked(ctx context.Context, sessionID, clarificationID string, value any, resolvedBy, note string) error {
	si := m.sess[sessionID]
	if si == nil {
		return eris.Wrapf(ErrSessionUnknown, "session %s", sessionID)
	}
	c, ok := si.byID[clarificationID]
	if !ok {
		return eris.Wrapf(ErrClarificationUnknown, "clarification %s", clarificationID)
	}
	if c.Status != model.ClarificationPending {
		return eris.Wrapf(ErrAlreadyResolved, "clarification %s", clarificationID)
	}

	now := time.Now().UTC()
	c.Status = model.ClarificationResolved
	c.ResolvedValue = value
	c.ResolvedBy = resolvedBy
	c.Note = note
	c.ResolvedAt = &now
	m.persist(ctx, c)

	zap.L().Info("clarify: resolved",
		zap.String("session_id", sessionID),
		zap.String("clarification_id", clarificationID),
		zap.String("field_path", c.FieldPath),
		zap.String("resolved_by", resolvedBy),
	)
	return nil
}

// ResolveBulk applies each resolution independently; one failure never aborts
// the rest. Outcomes come back in input order.
func (m *Manager) ResolveBulk(ctx context.Context, sessionID string, resolutions []model.Resolution) []model.ResolutionOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.ResolutionOutcome, 0, len(resolutions))
	for _, r := range resolutions {
		o := model.ResolutionOutcome{ClarificationID: r.ClarificationID, OK: true}
		if err := m.resolveLocked(ctx, sessionID, r.ClarificationID, r.Value, r.ResolvedBy, r.Note); err != nil {
			o.OK = false
			o.Err = err.Error()
		}
		out = append(out, o)
	}
	return out
}

// CanProceed reports whether the session has no pending clarification at or
// above the blocking threshold. Resolution state is updated under the same
// lock, so a resolve followed by CanProceed always observes the resolution.
func (m *Manager) CanProceed(sessionID string) bool {
	return m.BlockingCount(sessionID) == 0
}

// BlockingCount returns how many pending clarifications currently block the
// session.
func (m *Manager) BlockingCount(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	si := m.sess[sessionID]
	if si == nil {
		return 0
	}
	n := 0
	for _, c := range si.order {
		if c.Blocking(m.opts.BlockingThreshold) {
			n++
		}
	}
	return n
}

// PendingCount returns the number of pending clarifications for a session.
func (m *Manager) PendingCount(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	si := m.sess[sessionID]
	if si == nil {
		return 0
	}
	n := 0
	for _, c := range si.order {
		if c.Status == model.ClarificationPending {
			n++
		}
	}
	return n
}

// Drop discards all clarification state for a session. Called on registry
// eviction; persisted records outlive the in-memory state.
func (m *Manager) Drop(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sess, sessionID)
}

func (m *Manager) persist(ctx context.Context, c *model.Clarification) {
	if m.opts.Store == nil {
		return
	}
	if err := m.opts.Store.SaveClarification(ctx, c); err != nil {
		zap.L().Warn("clarify: persist failed",
			zap.String("clarification_id", c.ID),
			zap.Error(err),
		)
	}
}

func clampPriority(p int) int {
	if p < model.MinPriority {
		return model.MinPriority
	}
	if p > model.MaxPriority {
		return model.MaxPriority
	}
	return p
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
