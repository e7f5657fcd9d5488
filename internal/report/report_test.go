package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/intake-cli/internal/model"
)

func sampleSnapshot() *model.SessionSnapshot {
	now := time.Now().UTC()
	snap := &model.SessionSnapshot{
		ID:     "sess-1",
		DealID: "deal-acme",
		DocumentQueue: []model.DocumentRef{
			{ID: "d1", Filename: "pnl.csv"},
			{ID: "d2", Filename: "scan.pdf"},
		},
		Cursor: 2,
		Status: model.StatusAwaitingClarifications,
		Results: map[string]*model.ExtractionResult{
			"d1": {
				DocumentID: "d1",
				Filename:   "pnl.csv",
				FinancialData: []model.FinancialPeriod{
					{Period: "2024", Revenue: 1250000, Expenses: 900000, NetOperatingIncome: 350000},
				},
				Confidence: 0.92,
				Duration:   840,
				Warnings:   []string{"sheet \"Notes\": model overloaded"},
			},
			"d2": {DocumentID: "d2", Filename: "scan.pdf", Err: "no extractable text"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	snap.CountResults()
	snap.Counts.PendingClarifications = 1
	return snap
}

func TestFormatReport(t *testing.T) {
	pending := []model.Clarification{{
		FieldPath:           "financials[0].revenue",
		FieldLabel:          "2024 revenue",
		ExtractedValue:      1250000.0,
		ExtractedConfidence: 0.4,
		Type:                model.ClarificationConflict,
		Priority:            9,
		BenchmarkRange:      &model.Range{Low: 500000, High: 2000000},
	}}

	out := Format(sampleSnapshot(), pending)

	assert.Contains(t, out, "# Intake Report: deal-acme")
	assert.Contains(t, out, "Status: awaiting_clarifications")
	assert.Contains(t, out, "2 queued, 1 processed, 1 errored")
	assert.Contains(t, out, "pnl.csv: 1 financial")
	assert.Contains(t, out, "scan.pdf: ERROR (no extractable text)")
	assert.Contains(t, out, "Warning: sheet \"Notes\"")
	// thousands separators from the localized printer
	assert.Contains(t, out, "$1,250,000")
	assert.Contains(t, out, "[P9] 2024 revenue (conflict)")
	assert.Contains(t, out, "Benchmark: 500000.00 to 2000000.00")
}

func TestFormatReportCompleteWithoutPending(t *testing.T) {
	snap := sampleSnapshot()
	snap.Status = model.StatusComplete
	snap.Counts.PendingClarifications = 0

	out := Format(snap, nil)
	assert.NotContains(t, out, "## Pending Clarifications")
	assert.Contains(t, out, "Status: complete")
}

func TestFormatReportErrorSession(t *testing.T) {
	snap := sampleSnapshot()
	snap.Status = model.StatusError
	snap.Error = "all 2 documents failed"

	out := Format(snap, nil)
	assert.Contains(t, out, "## Error\nall 2 documents failed")
}
