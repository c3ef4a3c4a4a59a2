package model

import "time"

// Phase is the conversation phase of a session. The set is closed: the
// orchestrator dispatches over it exhaustively and treats any value outside
// this set as a concurrency violation.
type Phase string

// Session phases, in advancement order, plus the two absorbing phases.
const (
	PhaseUnderstanding Phase = "understanding"
	PhaseDesigning     Phase = "designing"
	PhaseValidating    Phase = "validating"
	PhaseDeploying     Phase = "deploying"
	PhaseMonitoring    Phase = "monitoring"
	PhaseCompleted     Phase = "completed"
	PhaseFailed        Phase = "failed"
	PhaseRolledBack    Phase = "rolled_back"
)

var phaseRank = map[Phase]int{
	PhaseUnderstanding: 0,
	PhaseDesigning:     1,
	PhaseValidating:    2,
	PhaseDeploying:     3,
	PhaseMonitoring:    4,
	PhaseCompleted:     5,
}

// Known reports whether p is a member of the closed phase set.
func (p Phase) Known() bool {
	if _, ok := phaseRank[p]; ok {
		return true
	}
	return p == PhaseFailed || p == PhaseRolledBack
}

// Terminal reports whether p accepts no further phase-advancing input.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed || p == PhaseRolledBack
}

// CanTransitionTo reports whether moving from p to next preserves the phase
// invariant: forward-only advancement, failed reachable from any non-terminal
// phase, rolled_back only from deploying or monitoring.
func (p Phase) CanTransitionTo(next Phase) bool {
	if p.Terminal() {
		return false
	}
	switch next {
	case PhaseFailed:
		return true
	case PhaseRolledBack:
		return p == PhaseDeploying || p == PhaseMonitoring
	}
	from, ok := phaseRank[p]
	if !ok {
		return false
	}
	to, ok := phaseRank[next]
	if !ok {
		return false
	}
	return to > from
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one entry in a session's ordered message log.
type Message struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// FailureRecord captures the phase a session failed in and why.
type FailureRecord struct {
	Phase   Phase  `json:"phase"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Session is one conversation between a tenant and the system. It is mutated
// exclusively by the orchestrator under per-session serialization; Version
// supports optimistic locking in the store.
type Session struct {
	SessionID  string               `json:"session_id"`
	TenantID   string               `json:"tenant_id"`
	Phase      Phase                `json:"phase"`
	Messages   []Message            `json:"messages"`
	LastSeq    uint64               `json:"last_seq"`
	Intent     *Intent              `json:"intent,omitempty"`
	Graph      *Graph               `json:"graph,omitempty"`
	Validation *ValidationResult    `json:"validation,omitempty"`
	Deployment *DeploymentRecord    `json:"deployment,omitempty"`
	Namespace  *NamespaceAssignment `json:"namespace,omitempty"`
	Failure    *FailureRecord       `json:"failure,omitempty"`
	Archived   bool                 `json:"archived"`
	CreatedAt  time.Time            `json:"created_at"`
	UpdatedAt  time.Time            `json:"updated_at"`
	Version    int                  `json:"version"`
}

// SessionEvent records an entry in a session's audit trail.
type SessionEvent struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Phase     Phase          `json:"phase"`
	Event     string         `json:"event"`
	ActorID   string         `json:"actor_id"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Artifacts carries machine-readable results alongside a reply. Internal
// identifiers (engine artifact ids, storage keys) travel only here, never in
// reply text.
type Artifacts struct {
	Intent     *Intent              `json:"intent,omitempty"`
	Graph      *Graph               `json:"graph,omitempty"`
	Validation *ValidationResult    `json:"validation,omitempty"`
	Deployment *DeploymentRecord    `json:"deployment,omitempty"`
	Namespace  *NamespaceAssignment `json:"namespace,omitempty"`
}

// Outcome is the result of handling one message: the session's new phase, a
// human-readable reply, and any artifacts produced by the handling component.
type Outcome struct {
	Phase     Phase      `json:"phase"`
	Reply     string     `json:"reply"`
	Artifacts *Artifacts `json:"artifacts,omitempty"`
	Replayed  bool       `json:"replayed,omitempty"`
}
