package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionStatus_Terminal(t *testing.T) {
	assert.False(t, StatusRunning.Terminal())
	assert.False(t, StatusAwaitingClarifications.Terminal())
	assert.True(t, StatusComplete.Terminal())
	assert.True(t, StatusError.Terminal())
}

func TestSnapshot_CountResults(t *testing.T) {
	snap := &SessionSnapshot{
		Results: map[string]*ExtractionResult{
			"doc-1": {
				DocumentID:    "doc-1",
				FinancialData: []FinancialPeriod{{Period: "2025"}, {Period: "2024"}},
				CensusData:    []CensusPeriod{{Period: "Jan"}},
				RateData:      []RateRecord{{UnitType: "studio", Rate: 4200}},
			},
			"doc-2": {DocumentID: "doc-2", Err: "parse failed"},
		},
		Counts: AggregateCounts{PendingClarifications: 3},
	}

	snap.CountResults()

	assert.Equal(t, 1, snap.Counts.DocumentsProcessed)
	assert.Equal(t, 1, snap.Counts.DocumentsErrored)
	assert.Equal(t, 2, snap.Counts.FinancialPeriods)
	assert.Equal(t, 1, snap.Counts.CensusPeriods)
	assert.Equal(t, 1, snap.Counts.RateRecords)
	// Pending clarifications are owned by the clarification manager.
	assert.Equal(t, 3, snap.Counts.PendingClarifications)
}

func TestClarification_Blocking(t *testing.T) {
	c := &Clarification{Status: ClarificationPending, Priority: 9}
	assert.True(t, c.Blocking(9))
	assert.False(t, c.Blocking(10))

	c.Status = ClarificationResolved
	assert.False(t, c.Blocking(9))
}

func TestRange_Contains(t *testing.T) {
	r := Range{Low: 0.80, High: 0.98}
	assert.True(t, r.Contains(0.80))
	assert.True(t, r.Contains(0.98))
	assert.False(t, r.Contains(0.99))
	assert.False(t, r.Contains(0.5))
}
