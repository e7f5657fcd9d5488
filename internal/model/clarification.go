package model

import "time"

// ClarificationType categorizes why a field needs human attention.
type ClarificationType string

const (
	ClarificationLowConfidence ClarificationType = "low_confidence"
	ClarificationConflict      ClarificationType = "conflict"
	ClarificationMissing       ClarificationType = "missing"
)

// ClarificationStatus tracks resolution state. Transitions only go
// pending→resolved or pending→auto_resolved, never back.
type ClarificationStatus string

const (
	ClarificationPending      ClarificationStatus = "pending"
	ClarificationResolved     ClarificationStatus = "resolved"
	ClarificationAutoResolved ClarificationStatus = "auto_resolved"
)

// Clarification priority bounds. Priorities at or above a session's blocking
// threshold prevent completion until resolved.
const (
	MinPriority = 1
	MaxPriority = 10
)

// Range is an inclusive numeric benchmark interval for a field.
type Range struct {
	Low  float64 `json:"low" yaml:"low"`
	High float64 `json:"high" yaml:"high"`
}

// Contains reports whether v falls inside the range.
func (r Range) Contains(v float64) bool {
	return v >= r.Low && v <= r.High
}

// Clarification is a single ambiguous or low-confidence extracted field
// awaiting human resolution.
type Clarification struct {
	ID                  string              `json:"id"`
	SessionID           string              `json:"session_id"`
	DocumentID          string              `json:"document_id"`
	FieldPath           string              `json:"field_path"`
	FieldLabel          string              `json:"field_label"`
	ExtractedValue      any                 `json:"extracted_value"`
	ExtractedConfidence float64             `json:"extracted_confidence"`
	Type                ClarificationType   `json:"type"`
	Priority            int                 `json:"priority"`
	SuggestedValues     []any               `json:"suggested_values,omitempty"`
	BenchmarkRange      *Range              `json:"benchmark_range,omitempty"`
	Status              ClarificationStatus `json:"status"`
	ResolvedValue       any                 `json:"resolved_value,omitempty"`
	ResolvedBy          string              `json:"resolved_by,omitempty"`
	Note                string              `json:"note,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`
	ResolvedAt          *time.Time          `json:"resolved_at,omitempty"`
}

// Blocking reports whether this clarification prevents session completion at
// the given threshold while still pending.
func (c *Clarification) Blocking(threshold int) bool {
	return c.Status == ClarificationPending && c.Priority >= threshold
}

// Resolution is one requested clarification resolution.
type Resolution struct {
	ClarificationID string `json:"clarification_id"`
	Value           any    `json:"value"`
	ResolvedBy      string `json:"resolved_by"`
	Note            string `json:"note,omitempty"`
}

// ResolutionOutcome reports the per-item result of a bulk resolve. One
// failing item never aborts the rest of the batch.
type ResolutionOutcome struct {
	ClarificationID string `json:"clarification_id"`
	OK              bool   `json:"ok"`
	Err             string `json:"error,omitempty"`
}
