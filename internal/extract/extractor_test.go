package extract

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/intake-cli/internal/docstore"
	"github.com/sells-group/intake-cli/internal/model"
)

type mockDocs struct {
	mock.Mock
}

func (m *mockDocs) GetDocument(ctx context.Context, ref model.DocumentRef) ([]byte, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type mockAnalyzer struct {
	mock.Mock
}

func (m *mockAnalyzer) Analyze(ctx context.Context, sheet model.Sheet, content string) (*Analysis, error) {
	args := m.Called(ctx, sheet, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Analysis), args.Error(1)
}

type progressRecorder struct {
	stages    []string
	fractions []float64
}

func (p *progressRecorder) fn(stage string, progress float64, _ string) {
	p.stages = append(p.stages, stage)
	p.fractions = append(p.fractions, progress)
}

func TestExtractFileCSV(t *testing.T) {
	ref := model.DocumentRef{ID: "d1", Filename: "pnl.csv", URI: "pnl.csv"}
	docs := &mockDocs{}
	docs.On("GetDocument", mock.Anything, ref).
		Return([]byte("Line Item,YTD Actual,Budget\nTotal Revenue,1200000,1150000\nOperating Expenses,900000,880000\n"), nil)

	analyzer := &mockAnalyzer{}
	analyzer.On("Analyze", mock.Anything, mock.Anything, mock.Anything).
		Return(&Analysis{
			Financials: []model.FinancialPeriod{{Period: "2024", Revenue: 1200000}},
			Clarifications: []FieldClarification{{
				FieldPath:  "financials[0].expenses",
				Value:      900000.0,
				Confidence: 0.3,
				Type:       "conflict",
				Priority:   9,
			}},
			Confidence: 0.9,
		}, nil)

	rec := &progressRecorder{}
	e := New(docs, analyzer)
	result, clars, err := e.ExtractFile(context.Background(), ref, rec.fn)
	require.NoError(t, err)

	assert.Equal(t, "d1", result.DocumentID)
	assert.Equal(t, "pnl.csv", result.Filename)
	require.Len(t, result.FinancialData, 1)
	assert.Equal(t, 0.9, result.Confidence)
	assert.Empty(t, result.Warnings)
	assert.False(t, result.Failed())
	require.Len(t, result.Sheets, 1)
	assert.Equal(t, model.SheetFinancials, result.Sheets[0].Type)

	require.Len(t, clars, 1)
	assert.Equal(t, "d1", clars[0].DocumentID)
	// single-sheet documents keep the analyzer's field path unprefixed
	assert.Equal(t, "financials[0].expenses", clars[0].FieldPath)
	assert.Equal(t, model.ClarificationConflict, clars[0].Type)
	assert.Equal(t, 9, clars[0].Priority)

	require.NotEmpty(t, rec.stages)
	assert.Equal(t, StageParse, rec.stages[0])
	assert.Contains(t, rec.stages, StageClassify)
	assert.Contains(t, rec.stages, StageStructure)
	for i := 1; i < len(rec.fractions); i++ {
		assert.GreaterOrEqual(t, rec.fractions[i], rec.fractions[i-1])
	}
}

func TestExtractFileDocumentNotFound(t *testing.T) {
	ref := model.DocumentRef{ID: "d1", Filename: "missing.csv"}
	docs := &mockDocs{}
	docs.On("GetDocument", mock.Anything, ref).Return(nil, docstore.ErrNotFound)

	e := New(docs, &mockAnalyzer{})
	_, _, err := e.ExtractFile(context.Background(), ref, nil)
	require.Error(t, err)
	assert.True(t, eris.Is(err, docstore.ErrNotFound))
}

func TestExtractFileUnparseable(t *testing.T) {
	ref := model.DocumentRef{ID: "d1", Filename: "bad.xlsx"}
	docs := &mockDocs{}
	docs.On("GetDocument", mock.Anything, ref).Return([]byte("PK\x03\x04garbage"), nil)

	e := New(docs, &mockAnalyzer{})
	_, _, err := e.ExtractFile(context.Background(), ref, nil)
	assert.Error(t, err)
}

func TestExtractFilePartialSheetFailureDegrades(t *testing.T) {
	ref := model.DocumentRef{ID: "d1", Filename: "deal.xlsx"}
	data := buildXLSX(t, map[string][][]string{
		"Financials": {
			{"Line Item", "Revenue", "Expense"},
			{"Total", "100", "80"},
		},
		"Census": {
			{"Month", "Occupied", "Beds"},
			{"Jan", "88", "100"},
		},
	})
	docs := &mockDocs{}
	docs.On("GetDocument", mock.Anything, ref).Return(data, nil)

	analyzer := &mockAnalyzer{}
	analyzer.On("Analyze", mock.Anything, mock.MatchedBy(func(s model.Sheet) bool {
		return s.Name == "Financials"
	}), mock.Anything).Return(&Analysis{
		Financials: []model.FinancialPeriod{{Period: "2024"}},
		Confidence: 0.95,
	}, nil)
	analyzer.On("Analyze", mock.Anything, mock.MatchedBy(func(s model.Sheet) bool {
		return s.Name == "Census"
	}), mock.Anything).Return(nil, eris.New("model overloaded"))

	e := New(docs, analyzer)
	result, _, err := e.ExtractFile(context.Background(), ref, nil)
	require.NoError(t, err)

	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "Census")
	// partial failure caps confidence at the analyzed fraction
	assert.InDelta(t, 0.5, result.Confidence, 0.0001)
	assert.False(t, result.Failed())
}

func TestExtractFileAllSheetsFailed(t *testing.T) {
	ref := model.DocumentRef{ID: "d1", Filename: "pnl.csv"}
	docs := &mockDocs{}
	docs.On("GetDocument", mock.Anything, ref).Return([]byte("a,b\n1,2\n"), nil)

	analyzer := &mockAnalyzer{}
	analyzer.On("Analyze", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, eris.New("boom"))

	e := New(docs, analyzer)
	_, _, err := e.ExtractFile(context.Background(), ref, nil)
	assert.Error(t, err)
}

func TestExtractFileMultiSheetPrefixesFieldPaths(t *testing.T) {
	ref := model.DocumentRef{ID: "d1", Filename: "deal.xlsx"}
	data := buildXLSX(t, map[string][][]string{
		"Rates":  {{"Unit Type", "Rent"}, {"Studio", "4500"}},
		"Census": {{"Month", "Occupied"}, {"Jan", "88"}},
	})
	docs := &mockDocs{}
	docs.On("GetDocument", mock.Anything, ref).Return(data, nil)

	analyzer := &mockAnalyzer{}
	analyzer.On("Analyze", mock.Anything, mock.Anything, mock.Anything).
		Return(&Analysis{
			Clarifications: []FieldClarification{{FieldPath: "rates[0].rate", Priority: 5}},
			Confidence:     0.8,
		}, nil)

	e := New(docs, analyzer)
	_, clars, err := e.ExtractFile(context.Background(), ref, nil)
	require.NoError(t, err)
	require.Len(t, clars, 2)
	for _, c := range clars {
		assert.Contains(t, c.FieldPath, ".rates[0].rate")
	}
}
