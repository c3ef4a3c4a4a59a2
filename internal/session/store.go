// Package session persists conversation sessions and their audit trail, and
// caches handled-message outcomes for replay detection.
package session

import (
	"context"
	"time"

	"github.com/intelogroup/clixen-16ace7b7-sub001/model"
)

// Store persists sessions. Save must be durable before the orchestrator
// returns a reply to the caller; it uses optimistic locking on
// Session.Version and returns a conflict error on a stale write. Sessions
// are archived, never deleted.
type Store interface {
	// Load retrieves a session by id. Returns (nil, nil) when absent.
	Load(ctx context.Context, sessionID string) (*model.Session, error)

	// Save persists the session. Version 0 inserts; otherwise the stored
	// version must match and is incremented on success (mirrored into the
	// passed session).
	Save(ctx context.Context, sess *model.Session) error

	// AppendAuditEvent adds an event to the session's audit trail.
	AppendAuditEvent(ctx context.Context, event model.SessionEvent) error

	// GetAuditEvents returns the session's audit trail ordered by time.
	GetAuditEvents(ctx context.Context, sessionID string) ([]model.SessionEvent, error)

	// FindIdle returns non-archived sessions whose UpdatedAt is before the
	// cutoff or whose phase is terminal. Used by the archive sweep.
	FindIdle(ctx context.Context, cutoff time.Time, limit int) ([]*model.Session, error)

	// Archive marks the session archived.
	Archive(ctx context.Context, sessionID string) error
}
