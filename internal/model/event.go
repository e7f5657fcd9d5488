package model

import "time"

// EventKind enumerates pipeline progress event types.
type EventKind string

const (
	EventStart        EventKind = "start"
	EventFileStart    EventKind = "file_start"
	EventFileProgress EventKind = "file_progress"
	EventFileComplete EventKind = "file_complete"
	EventFileError    EventKind = "file_error"
	EventAwaiting     EventKind = "awaiting_clarifications"
	EventComplete     EventKind = "complete"
	EventError        EventKind = "error"
)

// ProgressEvent is one entry in a session's ordered progress stream.
// FileIndex is zero-based; TotalFiles is the queue length. Both are zero for
// session-scoped kinds (start, complete, error).
type ProgressEvent struct {
	Kind       EventKind `json:"kind"`
	SessionID  string    `json:"session_id"`
	DocumentID string    `json:"document_id,omitempty"`
	FileIndex  int       `json:"file_index"`
	TotalFiles int       `json:"total_files"`
	Stage      string    `json:"stage,omitempty"`
	Progress   float64   `json:"progress"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}
