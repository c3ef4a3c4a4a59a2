package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/intelogroup/clixen-16ace7b7-sub001/model"
)

// MemoryStore is an in-memory Store for testing and single-instance
// deployments. Sessions are stored as JSON-roundtripped copies so callers
// never share pointers with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
	events   map[string][]model.SessionEvent
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*model.Session),
		events:   make(map[string][]model.SessionEvent),
	}
}

// Load retrieves a session copy by id, or nil when absent.
func (s *MemoryStore) Load(_ context.Context, sessionID string) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return copySession(sess)
}

// Save persists the session with optimistic locking on Version.
func (s *MemoryStore) Save(_ context.Context, sess *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.sessions[sess.SessionID]
	if ok && existing.Version != sess.Version {
		return model.NewConflictError(fmt.Sprintf(
			"session %q version conflict (expected %d, got %d)",
			sess.SessionID, existing.Version, sess.Version))
	}

	sess.Version++
	sess.UpdatedAt = time.Now().UTC()
	stored, err := copySession(sess)
	if err != nil {
		return err
	}
	s.sessions[sess.SessionID] = stored
	return nil
}

// AppendAuditEvent adds an event to the session's audit trail.
func (s *MemoryStore) AppendAuditEvent(_ context.Context, event model.SessionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.SessionID] = append(s.events[event.SessionID], event)
	return nil
}

// GetAuditEvents returns the session's audit trail ordered by timestamp.
func (s *MemoryStore) GetAuditEvents(_ context.Context, sessionID string) ([]model.SessionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.events[sessionID]
	out := make([]model.SessionEvent, len(events))
	copy(out, events)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// FindIdle returns non-archived sessions idle past the cutoff or in a
// terminal phase, oldest first.
func (s *MemoryStore) FindIdle(_ context.Context, cutoff time.Time, limit int) ([]*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*model.Session
	for _, sess := range s.sessions {
		if sess.Archived {
			continue
		}
		if !sess.Phase.Terminal() && !sess.UpdatedAt.Before(cutoff) {
			continue
		}
		cp, err := copySession(sess)
		if err != nil {
			return nil, err
		}
		result = append(result, cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.Before(result[j].UpdatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Archive marks the session archived.
func (s *MemoryStore) Archive(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return model.NewNotFoundError(fmt.Sprintf("session %q not found", sessionID))
	}
	sess.Archived = true
	sess.UpdatedAt = time.Now().UTC()
	return nil
}

// Len returns the number of stored sessions. For testing.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// copySession deep-copies a session through JSON.
func copySession(sess *model.Session) (*model.Session, error) {
	data, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("copy session: %w", err)
	}
	var out model.Session
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("copy session: %w", err)
	}
	return &out, nil
}
