package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/intake-cli/internal/clarify"
	"github.com/sells-group/intake-cli/internal/extract"
	"github.com/sells-group/intake-cli/internal/model"
	"github.com/sells-group/intake-cli/internal/progress"
)

var (
	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = eris.New("session: not found")
	// ErrEmptyQueue is returned when a session is started with no documents.
	ErrEmptyQueue = eris.New("session: document queue is empty")
	// ErrAlreadyRunning is returned when Continue hits a running session.
	ErrAlreadyRunning = eris.New("session: already running")
	// ErrBlocked is returned when Continue is called while blocking
	// clarifications are still pending.
	ErrBlocked = eris.New("session: blocking clarifications pending")
)

// Pause policies. batch_end processes the whole queue before pausing on
// blockers; eager pauses as soon as a processed document leaves one pending.
const (
	PauseBatchEnd = "batch_end"
	PauseEager    = "eager"
)

// Extractor is the per-document pipeline the manager dispatches to.
type Extractor interface {
	ExtractFile(ctx context.Context, ref model.DocumentRef, onProgress extract.ProgressFunc) (*model.ExtractionResult, []model.Clarification, error)
}

// Persister durably stores session snapshots. Optional; nil disables
// persistence.
type Persister interface {
	SaveSession(ctx context.Context, snap *model.SessionSnapshot) error
}

// Config tunes the session manager.
type Config struct {
	// PausePolicy is PauseBatchEnd (default) or PauseEager.
	PausePolicy string
	// MaxConcurrent bounds how many sessions extract documents at once.
	MaxConcurrent int64
	// SessionTTL is how long terminal sessions stay resident before eviction.
	SessionTTL time.Duration
}

// Manager owns the session registry and run loops.
type Manager struct {
	cfg       Config
	reg       *registry
	extractor Extractor
	clar      *clarify.Manager
	bridge    *progress.Bridge
	store     Persister
	sem       *semaphore.Weighted
}

// NewManager wires the session manager. store may be nil.
func NewManager(cfg Config, extractor Extractor, clar *clarify.Manager, bridge *progress.Bridge, store Persister) *Manager {
	if cfg.PausePolicy == "" {
		cfg.PausePolicy = PauseBatchEnd
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = time.Hour
	}
	return &Manager{
		cfg:       cfg,
		reg:       newRegistry(),
		extractor: extractor,
		clar:      clar,
		bridge:    bridge,
		store:     store,
		sem:       semaphore.NewWeighted(cfg.MaxConcurrent),
	}
}

// Start validates the request, creates the session, and launches its run loop.
// The returned snapshot reflects the session immediately after creation.
func (m *Manager) Start(ctx context.Context, dealID string, docs []model.DocumentRef) (*model.SessionSnapshot, error) {
	if len(docs) == 0 {
		return nil, ErrEmptyQueue
	}
	seen := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		if d.ID == "" || d.Filename == "" {
			return nil, eris.Errorf("session: document needs id and filename, got id=%q filename=%q", d.ID, d.Filename)
		}
		if _, dup := seen[d.ID]; dup {
			return nil, eris.Errorf("session: duplicate document id %q", d.ID)
		}
		seen[d.ID] = struct{}{}
	}

	queue := make([]model.DocumentRef, len(docs))
	copy(queue, docs)
	s := newSession(uuid.New().String(), dealID, queue)
	m.reg.put(s)
	m.bridge.CreateEmitter(s.id)

	zap.L().Info("session: started",
		zap.String("session_id", s.id),
		zap.String("deal_id", dealID),
		zap.Int("documents", len(queue)),
	)

	m.publish(s.id, model.ProgressEvent{
		Kind:       model.EventStart,
		TotalFiles: len(queue),
		Message:    fmt.Sprintf("session started, %d documents queued", len(queue)),
	})
	snap := m.snapshot(s)
	m.persist(ctx, snap)

	go m.run(context.Background(), s)
	return snap, nil
}

// Get returns a snapshot of the session, or ErrSessionNotFound.
func (m *Manager) Get(id string) (*model.SessionSnapshot, error) {
	s, ok := m.reg.get(id)
	if !ok {
		return nil, eris.Wrapf(ErrSessionNotFound, "session %s", id)
	}
	return m.snapshot(s), nil
}

// List returns snapshots of every resident session.
func (m *Manager) List() []*model.SessionSnapshot {
	live := m.reg.list()
	out := make([]*model.SessionSnapshot, 0, len(live))
	for _, s := range live {
		out = append(out, m.snapshot(s))
	}
	return out
}

// Continue resumes a paused session. Semantics by state:
//   - terminal: returns the snapshot with no error (repeat continues are no-ops)
//   - running: ErrAlreadyRunning
//   - awaiting with blocking clarifications pending: ErrBlocked
//   - awaiting, queue exhausted: finalizes synchronously
//   - awaiting, documents remaining: resumes the run loop from the cursor
func (m *Manager) Continue(ctx context.Context, id string) (*model.SessionSnapshot, error) {
	s, ok := m.reg.get(id)
	if !ok {
		return nil, eris.Wrapf(ErrSessionNotFound, "session %s", id)
	}

	s.mu.Lock()
	status := s.status
	exhausted := s.cursor >= len(s.queue)
	if status == model.StatusAwaitingClarifications {
		if !m.clar.CanProceed(id) {
			s.mu.Unlock()
			return nil, eris.Wrapf(ErrBlocked, "session %s", id)
		}
		// Claim the run before releasing the lock so concurrent continues
		// cannot double-dispatch or double-finalize.
		s.status = model.StatusRunning
		s.updatedAt = time.Now().UTC()
	}
	s.mu.Unlock()

	switch {
	case status.Terminal():
		return m.snapshot(s), nil
	case status == model.StatusRunning:
		return nil, eris.Wrapf(ErrAlreadyRunning, "session %s", id)
	case exhausted:
		m.finalize(ctx, s)
		return m.snapshot(s), nil
	default:
		zap.L().Info("session: resumed",
			zap.String("session_id", id),
		)
		go m.run(context.Background(), s)
		return m.snapshot(s), nil
	}
}

// Pending returns the session's pending clarifications.
func (m *Manager) Pending(id string) ([]model.Clarification, error) {
	if _, ok := m.reg.get(id); !ok {
		return nil, eris.Wrapf(ErrSessionNotFound, "session %s", id)
	}
	return m.clar.Pending(id), nil
}

// Resolve records one clarification resolution.
func (m *Manager) Resolve(ctx context.Context, id, clarificationID string, value any, resolvedBy, note string) error {
	if _, ok := m.reg.get(id); !ok {
		return eris.Wrapf(ErrSessionNotFound, "session %s", id)
	}
	return m.clar.Resolve(ctx, id, clarificationID, value, resolvedBy, note)
}

// ResolveBulk records a batch of resolutions with per-item outcomes.
func (m *Manager) ResolveBulk(ctx context.Context, id string, resolutions []model.Resolution) ([]model.ResolutionOutcome, error) {
	if _, ok := m.reg.get(id); !ok {
		return nil, eris.Wrapf(ErrSessionNotFound, "session %s", id)
	}
	return m.clar.ResolveBulk(ctx, id, resolutions), nil
}

// Subscribe attaches a live event subscription for the session.
func (m *Manager) Subscribe(id string) (*progress.Subscription, error) {
	sub, err := m.bridge.Subscribe(id)
	if err != nil {
		return nil, eris.Wrapf(ErrSessionNotFound, "session %s", id)
	}
	return sub, nil
}

// StartEvictor sweeps terminal sessions past their TTL until ctx is done.
func (m *Manager) StartEvictor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				for _, id := range m.reg.sweepTerminal(m.cfg.SessionTTL, now) {
					m.bridge.Remove(id)
					m.clar.Drop(id)
				}
			}
		}
	}()
}

// run drains the document queue from the cursor, then finalizes or pauses.
func (m *Manager) run(ctx context.Context, s *Session) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		m.fail(ctx, s, eris.Wrap(err, "session: acquire slot"))
		return
	}
	defer m.sem.Release(1)

	total := len(s.Snapshot().DocumentQueue)
	for {
		doc, idx, ok := s.next()
		if !ok {
			break
		}
		m.processDocument(ctx, s, doc, idx, total)
		m.persist(ctx, m.snapshot(s))

		if m.cfg.PausePolicy == PauseEager && !m.clar.CanProceed(s.id) {
			m.pause(ctx, s)
			return
		}
	}
	m.finalize(ctx, s)
}

// processDocument runs one document through the extractor and records the
// outcome. A panic in the extractor is contained to the document.
func (m *Manager) processDocument(ctx context.Context, s *Session, doc model.DocumentRef, idx, total int) {
	m.publish(s.id, model.ProgressEvent{
		Kind:       model.EventFileStart,
		DocumentID: doc.ID,
		FileIndex:  idx,
		TotalFiles: total,
		Message:    doc.Filename,
	})

	onProgress := func(stage string, fraction float64, message string) {
		m.publish(s.id, model.ProgressEvent{
			Kind:       model.EventFileProgress,
			DocumentID: doc.ID,
			FileIndex:  idx,
			TotalFiles: total,
			Stage:      stage,
			Progress:   fraction,
			Message:    message,
		})
	}

	result, clars, err := m.extractDocument(ctx, doc, onProgress)
	if err != nil {
		zap.L().Warn("session: document failed",
			zap.String("session_id", s.id),
			zap.String("document_id", doc.ID),
			zap.Error(err),
		)
		s.recordResult(&model.ExtractionResult{
			DocumentID: doc.ID,
			Filename:   doc.Filename,
			Err:        eris.Cause(err).Error(),
		})
		m.publish(s.id, model.ProgressEvent{
			Kind:       model.EventFileError,
			DocumentID: doc.ID,
			FileIndex:  idx,
			TotalFiles: total,
			Message:    eris.Cause(err).Error(),
		})
		return
	}

	s.recordResult(result)
	if len(clars) > 0 {
		m.clar.Register(ctx, s.id, clars)
	}
	m.publish(s.id, model.ProgressEvent{
		Kind:       model.EventFileComplete,
		DocumentID: doc.ID,
		FileIndex:  idx,
		TotalFiles: total,
		Progress:   1,
		Message: fmt.Sprintf("%s: %d financial, %d census, %d rate records, %d clarifications",
			doc.Filename, len(result.FinancialData), len(result.CensusData), len(result.RateData), len(clars)),
	})
}

func (m *Manager) extractDocument(ctx context.Context, doc model.DocumentRef, onProgress extract.ProgressFunc) (result *model.ExtractionResult, clars []model.Clarification, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("panic extracting %s: %v", doc.Filename, r)
		}
	}()
	return m.extractor.ExtractFile(ctx, doc, onProgress)
}

// finalize decides the terminal or paused state once the queue is drained.
func (m *Manager) finalize(ctx context.Context, s *Session) {
	if !m.clar.CanProceed(s.id) {
		m.pause(ctx, s)
		return
	}

	snap := m.snapshot(s)
	if snap.Counts.DocumentsProcessed == 0 && snap.Counts.DocumentsErrored > 0 {
		m.fail(ctx, s, eris.Errorf("all %d documents failed", snap.Counts.DocumentsErrored))
		return
	}

	s.setStatus(model.StatusComplete, "")
	snap = m.snapshot(s)
	m.persist(ctx, snap)
	zap.L().Info("session: complete",
		zap.String("session_id", s.id),
		zap.Int("processed", snap.Counts.DocumentsProcessed),
		zap.Int("errored", snap.Counts.DocumentsErrored),
	)
	m.publish(s.id, model.ProgressEvent{
		Kind:       model.EventComplete,
		TotalFiles: len(snap.DocumentQueue),
		Progress:   1,
		Message: fmt.Sprintf("%d documents processed, %d errored",
			snap.Counts.DocumentsProcessed, snap.Counts.DocumentsErrored),
	})
	m.bridge.Close(s.id)
}

// pause parks the session until clarifications are resolved. The bridge stays
// open so subscribers see resume events on the same stream.
func (m *Manager) pause(ctx context.Context, s *Session) {
	s.setStatus(model.StatusAwaitingClarifications, "")
	m.persist(ctx, m.snapshot(s))

	blocking := m.clar.BlockingCount(s.id)
	zap.L().Info("session: awaiting clarifications",
		zap.String("session_id", s.id),
		zap.Int("blocking", blocking),
		zap.Int("pending", m.clar.PendingCount(s.id)),
	)
	m.publish(s.id, model.ProgressEvent{
		Kind:    model.EventAwaiting,
		Message: fmt.Sprintf("%d blocking clarifications pending", blocking),
	})
}

func (m *Manager) fail(ctx context.Context, s *Session, err error) {
	msg := eris.Cause(err).Error()
	s.setStatus(model.StatusError, msg)
	m.persist(ctx, m.snapshot(s))
	zap.L().Error("session: failed",
		zap.String("session_id", s.id),
		zap.Error(err),
	)
	m.publish(s.id, model.ProgressEvent{
		Kind:    model.EventError,
		Message: msg,
	})
	m.bridge.Close(s.id)
}

// snapshot builds a view with clarification counts folded in.
func (m *Manager) snapshot(s *Session) *model.SessionSnapshot {
	snap := s.Snapshot()
	snap.Counts.PendingClarifications = m.clar.PendingCount(s.id)
	return snap
}

func (m *Manager) publish(sessionID string, ev model.ProgressEvent) {
	ev.SessionID = sessionID
	ev.Timestamp = time.Now().UTC()
	m.bridge.Publish(sessionID, ev)
}

func (m *Manager) persist(ctx context.Context, snap *model.SessionSnapshot) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveSession(ctx, snap); err != nil {
		zap.L().Warn("session: persist failed",
			zap.String("session_id", snap.ID),
			zap.Error(err),
		)
	}
}
