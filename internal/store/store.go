// Package store persists session snapshots and clarification records so an
// operator can audit or recover intake runs after the process restarts.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/intake-cli/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = eris.New("store: not found")

// SessionFilter specifies criteria for listing sessions.
type SessionFilter struct {
	Status model.SessionStatus `json:"status,omitempty"`
	DealID string              `json:"deal_id,omitempty"`
	Limit  int                 `json:"limit,omitempty"`
	Offset int                 `json:"offset,omitempty"`
}

// Store defines the persistence interface for the intake pipeline. It
// satisfies both the session manager's and the clarification manager's
// persister contracts.
type Store interface {
	// Sessions
	SaveSession(ctx context.Context, snap *model.SessionSnapshot) error
	GetSession(ctx context.Context, id string) (*model.SessionSnapshot, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]model.SessionSnapshot, error)

	// Clarifications
	SaveClarification(ctx context.Context, c *model.Clarification) error
	LoadPendingClarifications(ctx context.Context, sessionID string) ([]model.Clarification, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
