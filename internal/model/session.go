package model

import "time"

// SessionStatus is the lifecycle state of a pipeline session.
type SessionStatus string

const (
	StatusRunning                SessionStatus = "running"
	StatusAwaitingClarifications SessionStatus = "awaiting_clarifications"
	StatusComplete               SessionStatus = "complete"
	StatusError                  SessionStatus = "error"
)

// Terminal reports whether the status is final. Terminal sessions are never
// resumed; the registry may evict them after an inactivity window.
func (s SessionStatus) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// DocumentRef identifies one document in a session's queue.
type DocumentRef struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	// URI optionally overrides where the document store looks the bytes up
	// (e.g. an ftp:// URL). Empty means the store resolves by ID/filename.
	URI string `json:"uri,omitempty"`
}

// AggregateCounts are derived totals over a session's accumulated results.
type AggregateCounts struct {
	DocumentsProcessed    int `json:"documents_processed"`
	DocumentsErrored      int `json:"documents_errored"`
	FinancialPeriods      int `json:"financial_periods"`
	CensusPeriods         int `json:"census_periods"`
	RateRecords           int `json:"rate_records"`
	PendingClarifications int `json:"pending_clarifications"`
}

// SessionSnapshot is a read-only view of a pipeline session. The execution
// loop owns the live session; everything handed outward is a snapshot.
type SessionSnapshot struct {
	ID            string                       `json:"id"`
	DealID        string                       `json:"deal_id"`
	DocumentQueue []DocumentRef                `json:"document_queue"`
	Cursor        int                          `json:"cursor"`
	Status        SessionStatus                `json:"status"`
	Results       map[string]*ExtractionResult `json:"results"`
	Counts        AggregateCounts              `json:"counts"`
	Error         string                       `json:"error,omitempty"`
	CreatedAt     time.Time                    `json:"created_at"`
	UpdatedAt     time.Time                    `json:"updated_at"`
}

// CountResults recomputes the aggregate totals from the snapshot's results.
// PendingClarifications is owned by the clarification manager and is left
// untouched.
func (s *SessionSnapshot) CountResults() {
	c := AggregateCounts{PendingClarifications: s.Counts.PendingClarifications}
	for _, r := range s.Results {
		if r.Failed() {
			c.DocumentsErrored++
			continue
		}
		c.DocumentsProcessed++
		c.FinancialPeriods += len(r.FinancialData)
		c.CensusPeriods += len(r.CensusData)
		c.RateRecords += len(r.RateData)
	}
	s.Counts = c
}
