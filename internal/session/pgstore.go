package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/intelogroup/clixen-16ace7b7-sub001/model"
)

// PgStore is a PostgreSQL-backed Store using pgx/v5. The session body is
// stored as a JSONB column beside the columns queries filter on, so the
// schema does not chase the session shape.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL session store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Load retrieves a session by id, or nil when absent.
func (s *PgStore) Load(ctx context.Context, sessionID string) (*model.Session, error) {
	var body []byte
	var version int
	err := s.pool.QueryRow(ctx, `
		SELECT body, version FROM sessions WHERE id = $1`,
		sessionID,
	).Scan(&body, &version)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}

	var sess model.Session
	if err := json.Unmarshal(body, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	sess.Version = version
	return &sess, nil
}

// Save persists the session with optimistic locking on Version.
func (s *PgStore) Save(ctx context.Context, sess *model.Session) error {
	sess.UpdatedAt = time.Now().UTC()
	next := sess.Version + 1

	body, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if sess.Version == 0 {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO sessions (id, tenant_id, phase, archived, body, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			sess.SessionID, sess.TenantID, string(sess.Phase), sess.Archived,
			body, next, sess.CreatedAt, sess.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		sess.Version = next
		return nil
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET
			phase = $1, archived = $2, body = $3, version = $4, updated_at = $5
		WHERE id = $6 AND version = $7`,
		string(sess.Phase), sess.Archived, body, next, sess.UpdatedAt,
		sess.SessionID, sess.Version,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewConflictError(fmt.Sprintf(
			"session %q version conflict (expected %d)", sess.SessionID, sess.Version))
	}
	sess.Version = next
	return nil
}

// AppendAuditEvent adds an event to the session's audit trail.
func (s *PgStore) AppendAuditEvent(ctx context.Context, event model.SessionEvent) error {
	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO session_events (id, session_id, phase, event, actor_id, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID, event.SessionID, string(event.Phase), event.Event,
		event.ActorID, dataJSON, event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert session event: %w", err)
	}
	return nil
}

// GetAuditEvents returns the session's audit trail ordered by time.
func (s *PgStore) GetAuditEvents(ctx context.Context, sessionID string) ([]model.SessionEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, phase, event, actor_id, data, created_at
		FROM session_events
		WHERE session_id = $1
		ORDER BY created_at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query session events: %w", err)
	}
	defer rows.Close()

	var events []model.SessionEvent
	for rows.Next() {
		var evt model.SessionEvent
		var phase string
		var dataJSON []byte
		if err := rows.Scan(&evt.ID, &evt.SessionID, &phase, &evt.Event,
			&evt.ActorID, &dataJSON, &evt.Timestamp); err != nil {
			return nil, fmt.Errorf("scan session event: %w", err)
		}
		evt.Phase = model.Phase(phase)
		if dataJSON != nil {
			_ = json.Unmarshal(dataJSON, &evt.Data)
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

// FindIdle returns non-archived sessions idle past the cutoff or in a
// terminal phase, oldest first.
func (s *PgStore) FindIdle(ctx context.Context, cutoff time.Time, limit int) ([]*model.Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT body, version FROM sessions
		WHERE archived = false
		  AND (updated_at < $1 OR phase IN ('completed', 'failed', 'rolled_back'))
		ORDER BY updated_at ASC
		LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query idle sessions: %w", err)
	}
	defer rows.Close()

	var result []*model.Session
	for rows.Next() {
		var body []byte
		var version int
		if err := rows.Scan(&body, &version); err != nil {
			return nil, fmt.Errorf("scan idle session: %w", err)
		}
		var sess model.Session
		if err := json.Unmarshal(body, &sess); err != nil {
			return nil, fmt.Errorf("unmarshal idle session: %w", err)
		}
		sess.Version = version
		result = append(result, &sess)
	}
	return result, rows.Err()
}

// Archive marks the session archived.
func (s *PgStore) Archive(ctx context.Context, sessionID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET archived = true, updated_at = now() WHERE id = $1`,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("archive session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(fmt.Sprintf("session %q not found", sessionID))
	}
	return nil
}

// HealthCheck verifies database connectivity for the readiness endpoint.
func (s *PgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
