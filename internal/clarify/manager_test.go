package clarify

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/intake-cli/internal/model"
)

func newTestManager(t *testing.T, opts Options) *Manager {
	t.Helper()
	if opts.BlockingThreshold == 0 {
		opts.BlockingThreshold = 9
	}
	return NewManager(opts)
}

func clItem(docID, path string, priority int, value any) model.Clarification {
	return model.Clarification{
		DocumentID:          docID,
		FieldPath:           path,
		ExtractedValue:      value,
		ExtractedConfidence: 0.4,
		Type:                model.ClarificationLowConfidence,
		Priority:            priority,
	}
}

func TestRegisterAssignsIDsAndPending(t *testing.T) {
	m := newTestManager(t, Options{})

	stored := m.Register(context.Background(), "s1", []model.Clarification{
		clItem("d1", "financials.revenue", 9, 120000.0),
		clItem("d1", "census.lives", 5, 42),
	})

	require.Len(t, stored, 2)
	for _, c := range stored {
		assert.NotEmpty(t, c.ID)
		assert.Equal(t, "s1", c.SessionID)
		assert.Equal(t, model.ClarificationPending, c.Status)
		assert.False(t, c.CreatedAt.IsZero())
	}
	assert.Equal(t, 2, m.PendingCount("s1"))
	assert.Equal(t, 1, m.BlockingCount("s1"))
	assert.False(t, m.CanProceed("s1"))
}

func TestRegisterIdempotentOnDocumentAndField(t *testing.T) {
	m := newTestManager(t, Options{})
	ctx := context.Background()

	first := m.Register(ctx, "s1", []model.Clarification{
		clItem("d1", "financials.revenue", 9, 100.0),
	})
	second := m.Register(ctx, "s1", []model.Clarification{
		clItem("d1", "financials.revenue", 7, 200.0),
	})

	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, 200.0, second[0].ExtractedValue)
	assert.Equal(t, 7, second[0].Priority)
	assert.Equal(t, 1, m.PendingCount("s1"))
}

func TestRegisterNeverResurrectsResolved(t *testing.T) {
	m := newTestManager(t, Options{})
	ctx := context.Background()

	stored := m.Register(ctx, "s1", []model.Clarification{
		clItem("d1", "financials.revenue", 9, 100.0),
	})
	require.NoError(t, m.Resolve(ctx, "s1", stored[0].ID, 150.0, "analyst", ""))

	again := m.Register(ctx, "s1", []model.Clarification{
		clItem("d1", "financials.revenue", 9, 300.0),
	})
	require.Len(t, again, 1)
	assert.Equal(t, model.ClarificationResolved, again[0].Status)
	assert.Equal(t, 150.0, again[0].ResolvedValue)
	assert.Equal(t, 0, m.PendingCount("s1"))
}

func TestRegisterClampsPriority(t *testing.T) {
	m := newTestManager(t, Options{})

	stored := m.Register(context.Background(), "s1", []model.Clarification{
		clItem("d1", "a", 0, nil),
		clItem("d1", "b", 15, nil),
	})
	assert.Equal(t, model.MinPriority, stored[0].Priority)
	assert.Equal(t, model.MaxPriority, stored[1].Priority)
}

func TestAutoResolveWithinBenchmark(t *testing.T) {
	m := newTestManager(t, Options{
		AutoResolveThreshold: 4,
		Benchmarks: map[string]Benchmark{
			"rates.medical": {Label: "Medical rate", Range: model.Range{Low: 100, High: 900}},
		},
	})

	stored := m.Register(context.Background(), "s1", []model.Clarification{
		clItem("d1", "rates.medical", 3, 450.0),
	})

	require.Len(t, stored, 1)
	assert.Equal(t, model.ClarificationAutoResolved, stored[0].Status)
	assert.Equal(t, 450.0, stored[0].ResolvedValue)
	assert.Equal(t, "system", stored[0].ResolvedBy)
	require.NotNil(t, stored[0].BenchmarkRange)
	assert.Equal(t, "Medical rate", stored[0].FieldLabel)
	assert.Equal(t, 0, m.PendingCount("s1"))
}

func TestNoAutoResolveOutsideBenchmarkOrHighPriority(t *testing.T) {
	m := newTestManager(t, Options{
		AutoResolveThreshold: 4,
		Benchmarks: map[string]Benchmark{
			"rates.medical": {Range: model.Range{Low: 100, High: 900}},
		},
	})

	stored := m.Register(context.Background(), "s1", []model.Clarification{
		clItem("d1", "rates.medical", 3, 5000.0),
		clItem("d2", "rates.medical", 8, 450.0),
	})
	assert.Equal(t, model.ClarificationPending, stored[0].Status)
	assert.Equal(t, model.ClarificationPending, stored[1].Status)
}

func TestPendingOrderedByPriorityThenCreation(t *testing.T) {
	m := newTestManager(t, Options{})

	m.Register(context.Background(), "s1", []model.Clarification{
		clItem("d1", "a", 5, nil),
		clItem("d1", "b", 9, nil),
		clItem("d2", "c", 5, nil),
		clItem("d2", "d", 10, nil),
	})

	pending := m.Pending("s1")
	require.Len(t, pending, 4)
	assert.Equal(t, "d", pending[0].FieldPath)
	assert.Equal(t, "b", pending[1].FieldPath)
	assert.Equal(t, "a", pending[2].FieldPath)
	assert.Equal(t, "c", pending[3].FieldPath)
}

func TestResolveFirstWriterWins(t *testing.T) {
	m := newTestManager(t, Options{})
	ctx := context.Background()

	stored := m.Register(ctx, "s1", []model.Clarification{
		clItem("d1", "financials.revenue", 9, 100.0),
	})
	id := stored[0].ID

	require.NoError(t, m.Resolve(ctx, "s1", id, 150.0, "analyst", "checked source"))
	err := m.Resolve(ctx, "s1", id, 999.0, "other", "")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrAlreadyResolved))

	pending := m.Pending("s1")
	assert.Empty(t, pending)
	assert.True(t, m.CanProceed("s1"))
}

func TestResolveUnknowns(t *testing.T) {
	m := newTestManager(t, Options{})
	ctx := context.Background()

	err := m.Resolve(ctx, "nope", "x", nil, "a", "")
	assert.True(t, eris.Is(err, ErrSessionUnknown))

	m.Register(ctx, "s1", []model.Clarification{clItem("d1", "a", 5, nil)})
	err = m.Resolve(ctx, "s1", "missing-id", nil, "a", "")
	assert.True(t, eris.Is(err, ErrClarificationUnknown))
}

func TestResolveBulkPartialFailure(t *testing.T) {
	m := newTestManager(t, Options{})
	ctx := context.Background()

	stored := m.Register(ctx, "s1", []model.Clarification{
		clItem("d1", "a", 9, nil),
		clItem("d1", "b", 9, nil),
	})

	outcomes := m.ResolveBulk(ctx, "s1", []model.Resolution{
		{ClarificationID: stored[0].ID, Value: 1.0, ResolvedBy: "analyst"},
		{ClarificationID: "bogus", Value: 2.0, ResolvedBy: "analyst"},
		{ClarificationID: stored[1].ID, Value: 3.0, ResolvedBy: "analyst"},
	})

	require.Len(t, outcomes, 3)
	assert.True(t, outcomes[0].OK)
	assert.False(t, outcomes[1].OK)
	assert.NotEmpty(t, outcomes[1].Err)
	assert.True(t, outcomes[2].OK)
	assert.True(t, m.CanProceed("s1"))
}

func TestCanProceedReflectsThreshold(t *testing.T) {
	m := newTestManager(t, Options{BlockingThreshold: 9})
	ctx := context.Background()

	m.Register(ctx, "s1", []model.Clarification{clItem("d1", "a", 8, nil)})
	assert.True(t, m.CanProceed("s1"))

	stored := m.Register(ctx, "s1", []model.Clarification{clItem("d1", "b", 9, nil)})
	assert.False(t, m.CanProceed("s1"))

	require.NoError(t, m.Resolve(ctx, "s1", stored[0].ID, nil, "analyst", ""))
	assert.True(t, m.CanProceed("s1"))
}

func TestDropDiscardsSessionState(t *testing.T) {
	m := newTestManager(t, Options{})
	ctx := context.Background()

	m.Register(ctx, "s1", []model.Clarification{clItem("d1", "a", 9, nil)})
	m.Drop("s1")

	assert.Equal(t, 0, m.PendingCount("s1"))
	assert.Empty(t, m.Pending("s1"))
	err := m.Resolve(ctx, "s1", "whatever", nil, "a", "")
	assert.True(t, eris.Is(err, ErrSessionUnknown))
}

type capturingStore struct {
	mu    sync.Mutex
	saved []model.Clarification
}

func (s *capturingStore) SaveClarification(_ context.Context, c *model.Clarification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, *c)
	return nil
}

func TestPersisterReceivesInsertsAndResolutions(t *testing.T) {
	store := &capturingStore{}
	m := newTestManager(t, Options{Store: store})
	ctx := context.Background()

	stored := m.Register(ctx, "s1", []model.Clarification{clItem("d1", "a", 9, nil)})
	require.NoError(t, m.Resolve(ctx, "s1", stored[0].ID, 7.0, "analyst", ""))

	require.Len(t, store.saved, 2)
	assert.Equal(t, model.ClarificationPending, store.saved[0].Status)
	assert.Equal(t, model.ClarificationResolved, store.saved[1].Status)
}

func TestConcurrentResolveSingleWinner(t *testing.T) {
	m := newTestManager(t, Options{})
	ctx := context.Background()

	stored := m.Register(ctx, "s1", []model.Clarification{clItem("d1", "a", 9, nil)})
	id := stored[0].ID

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = m.Resolve(ctx, "s1", id, i, "analyst", "")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.True(t, eris.Is(err, ErrAlreadyResolved))
		}
	}
	assert.Equal(t, 1, wins)
}

func TestLoadBenchmarks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "benchmarks.yaml")
	content := `benchmarks:
  rates.medical:
    label: Medical rate
    range:
      low: 100
      high: 900
  financials.loss_ratio:
    label: Loss ratio
    range:
      low: 0.5
      high: 1.2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	b, err := LoadBenchmarks(path)
	require.NoError(t, err)
	require.Len(t, b, 2)
	assert.Equal(t, "Medical rate", b["rates.medical"].Label)
	assert.True(t, b["financials.loss_ratio"].Range.Contains(0.8))

	empty, err := LoadBenchmarks("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = LoadBenchmarks(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
