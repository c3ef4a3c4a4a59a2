package model

import "time"

// Deployment states.
const (
	DeploymentPending    = "pending"
	DeploymentActive     = "active"
	DeploymentMonitoring = "monitoring"
	DeploymentDegraded   = "degraded"
	DeploymentRolledBack = "rolled_back"
	DeploymentFailed     = "failed"
)

// Deployment protocol steps, used to name the failing step in errors and
// audit events.
const (
	DeployStepCheckpoint  = "checkpoint"
	DeployStepCreate      = "create"
	DeployStepRetirePrior = "retire-prior"
	DeployStepActivate    = "activate"
	DeployStepHealth      = "health-check"
	DeployStepRollback    = "rollback"
)

// Checkpoint is the snapshot taken before any mutating engine call, holding
// whatever is needed to restore the tenant's prior external state. None marks
// a first deployment with nothing to restore.
type Checkpoint struct {
	None            bool   `json:"none"`
	PriorExternalID string `json:"prior_external_id,omitempty"`
	PriorActive     bool   `json:"prior_active,omitempty"`
}

// DeploymentRecord tracks one deployment attempt against the external engine.
type DeploymentRecord struct {
	GraphVersion int        `json:"graph_version"`
	ExternalID   string     `json:"external_id,omitempty"`
	Checkpoint   Checkpoint `json:"checkpoint"`
	State        string     `json:"state"`
	HealthScore  int        `json:"health_score"`
	Deductions   []string   `json:"deductions,omitempty"`
	WebhookRef   string     `json:"webhook_ref,omitempty"`
	FailedStep   string     `json:"failed_step,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}
