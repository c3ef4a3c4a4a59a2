package deploy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/intelogroup/clixen-16ace7b7-sub001/internal/config"
	"github.com/intelogroup/clixen-16ace7b7-sub001/internal/engine"
	"github.com/intelogroup/clixen-16ace7b7-sub001/internal/namespace"
	"github.com/intelogroup/clixen-16ace7b7-sub001/model"
)

// Health score weights. Structure intact, activation confirmed, and the
// exercise (or its structural fallback) sum to 100.
const (
	healthWeightStructure = 40
	healthWeightActive    = 30
	healthWeightExercise  = 30
)

// Metrics is the subset of metric recorders the manager emits to.
type Metrics interface {
	RecordDeployment(state string)
	RecordDeployStep(step string, duration time.Duration)
	RecordHealthScore(score int)
	RecordRollback(result string)
	RecordEngineRetry(operation string)
}

type nopMetrics struct{}

func (nopMetrics) RecordDeployment(string)                {}
func (nopMetrics) RecordDeployStep(string, time.Duration) {}
func (nopMetrics) RecordHealthScore(int)                  {}
func (nopMetrics) RecordRollback(string)                  {}
func (nopMetrics) RecordEngineRetry(string)               {}

// Manager drives the deployment protocol against the external engine:
// checkpoint, create, activate, health check, and rollback on failure. One
// Deploy call runs to a terminal record state before returning; the caller
// holds the session lock for the whole window.
type Manager struct {
	client    engine.Client
	allocator *namespace.Allocator
	threshold int
	retry     config.HealthRetryConfig
	metrics   Metrics
	logger    *zap.Logger
}

// NewManager creates a deployment manager.
func NewManager(client engine.Client, allocator *namespace.Allocator, deployCfg config.DeploymentConfig, retryCfg config.HealthRetryConfig, metrics Metrics, logger *zap.Logger) *Manager {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	threshold := deployCfg.HealthThreshold
	if threshold <= 0 {
		threshold = 60
	}
	return &Manager{
		client:    client,
		allocator: allocator,
		threshold: threshold,
		retry:     retryCfg,
		metrics:   metrics,
		logger:    logger,
	}
}

// Deploy runs the full deployment protocol for the session's validated graph
// and returns the terminal deployment record. The record is also written to
// sess.Deployment, and a namespace assignment is made lazily on the first
// deployment. A non-nil error always accompanies a non-monitoring record.
func (m *Manager) Deploy(ctx context.Context, sess *model.Session) (*model.DeploymentRecord, error) {
	if sess.Graph == nil {
		return nil, model.NewDeploymentFailure(model.DeployStepCheckpoint, "no validated graph to deploy")
	}

	// 1. Namespace assignment, lazy on first deployment.
	if sess.Namespace == nil {
		assignment, err := m.allocator.Assign(ctx, sess.TenantID)
		if err != nil {
			return nil, err
		}
		sess.Namespace = assignment
	}

	// 2. Checkpoint prior external state before any mutating call.
	record := &model.DeploymentRecord{
		GraphVersion: sess.Graph.Version,
		State:        model.DeploymentPending,
		Checkpoint:   m.checkpoint(sess),
		StartedAt:    time.Now().UTC(),
	}
	sess.Deployment = record

	logger := m.logger.With(
		zap.String("session_id", sess.SessionID),
		zap.String("tenant_id", sess.TenantID),
		zap.Int("graph_version", sess.Graph.Version),
	)

	// 3. Create the translated artifact under the tenant's namespace prefix.
	artifact := Translate(sess.Graph, sess.Namespace, sess.SessionID)
	externalID, err := m.step(record, model.DeployStepCreate, func() (string, error) {
		return m.client.CreateArtifact(ctx, artifact)
	})
	if err != nil {
		// Nothing was changed on the engine, no rollback needed.
		m.finish(record, model.DeploymentFailed)
		logger.Warn("artifact create failed", zap.Error(err))
		return record, model.NewDeploymentFailure(model.DeployStepCreate, err.Error())
	}
	record.ExternalID = externalID

	// 4. Retire the prior artifact so at most one deployment is live.
	if record.Checkpoint.PriorActive {
		_, err = m.step(record, model.DeployStepRetirePrior, func() (string, error) {
			return "", m.client.Deactivate(ctx, record.Checkpoint.PriorExternalID)
		})
		if err != nil {
			m.rollback(ctx, record, logger)
			m.finish(record, model.DeploymentFailed)
			logger.Warn("prior artifact deactivate failed", zap.Error(err))
			return record, model.NewDeploymentFailure(model.DeployStepRetirePrior, err.Error())
		}
	}

	// 5. Activate. On failure, restore the checkpoint before reporting.
	_, err = m.step(record, model.DeployStepActivate, func() (string, error) {
		return "", m.client.Activate(ctx, externalID)
	})
	if err != nil {
		if rbErr := m.rollback(ctx, record, logger); rbErr != nil {
			m.finish(record, model.DeploymentFailed)
			return record, rbErr
		}
		m.finish(record, model.DeploymentFailed)
		logger.Warn("artifact activate failed", zap.Error(err))
		return record, model.NewDeploymentFailure(model.DeployStepActivate, err.Error())
	}
	record.State = model.DeploymentActive

	// 6. Health check. Below threshold means automatic rollback.
	score, deductions, webhookRef := m.healthCheck(ctx, sess.Graph, externalID)
	record.HealthScore = score
	record.Deductions = deductions
	record.WebhookRef = webhookRef
	m.metrics.RecordHealthScore(score)

	if score < m.threshold {
		logger.Warn("deployment failed health check",
			zap.Int("score", score),
			zap.Int("threshold", m.threshold),
			zap.Strings("deductions", deductions))
		if rbErr := m.rollback(ctx, record, logger); rbErr != nil {
			m.finish(record, model.DeploymentFailed)
			return record, rbErr
		}
		m.finish(record, model.DeploymentRolledBack)
		return record, model.NewDeploymentFailure(model.DeployStepHealth, fmt.Sprintf(
			"health score %d below threshold %d: %s",
			score, m.threshold, strings.Join(deductions, "; ")))
	}

	m.finish(record, model.DeploymentMonitoring)
	logger.Info("deployment healthy",
		zap.String("external_id", externalID),
		zap.Int("score", score))
	return record, nil
}

// Teardown deactivates the session's live artifact and restores its
// checkpoint, reusing the rollback path. It is a no-op without a live
// deployment.
func (m *Manager) Teardown(ctx context.Context, sess *model.Session) error {
	record := sess.Deployment
	if record == nil || record.ExternalID == "" {
		return nil
	}
	if record.State != model.DeploymentActive && record.State != model.DeploymentMonitoring {
		return nil
	}

	logger := m.logger.With(
		zap.String("session_id", sess.SessionID),
		zap.String("external_id", record.ExternalID),
	)
	if err := m.rollback(ctx, record, logger); err != nil {
		return err
	}
	m.finish(record, model.DeploymentRolledBack)
	logger.Info("deployment torn down")
	return nil
}

// checkpoint snapshots the prior external state, or None on a first
// deployment.
func (m *Manager) checkpoint(sess *model.Session) model.Checkpoint {
	prior := sess.Deployment
	if prior == nil || prior.ExternalID == "" {
		return model.Checkpoint{None: true}
	}
	active := prior.State == model.DeploymentActive || prior.State == model.DeploymentMonitoring
	return model.Checkpoint{
		PriorExternalID: prior.ExternalID,
		PriorActive:     active,
	}
}

// step runs one protocol step, recording its duration and stamping the
// record's FailedStep on error.
func (m *Manager) step(record *model.DeploymentRecord, name string, fn func() (string, error)) (string, error) {
	start := time.Now()
	out, err := fn()
	m.metrics.RecordDeployStep(name, time.Since(start))
	if err != nil {
		record.FailedStep = name
	}
	return out, err
}

// healthCheck scores the just-activated deployment. The artifact fetch is the
// only retried engine call; create and activate are never retried. When the
// engine exposes no exercise endpoint, structural equivalence of the fetched
// artifact stands in for the exercise weight.
func (m *Manager) healthCheck(ctx context.Context, graph *model.Graph, externalID string) (int, []string, string) {
	start := time.Now()
	defer func() {
		m.metrics.RecordDeployStep(model.DeployStepHealth, time.Since(start))
	}()

	fetched, err := m.fetchWithRetry(ctx, externalID)
	if err != nil {
		return 0, []string{fmt.Sprintf("artifact fetch failed: %v", err)}, ""
	}

	score := 0
	var deductions []string

	structureIntact := StructurallyEquivalent(graph, fetched)
	if structureIntact {
		score += healthWeightStructure
	} else {
		deductions = append(deductions, "deployed structure does not match the designed graph")
	}

	if fetched.Active {
		score += healthWeightActive
	} else {
		deductions = append(deductions, "artifact is not active")
	}

	result, err := m.client.Exercise(ctx, externalID, map[string]any{"probe": "health-check"})
	switch {
	case err == nil && result.Status == "success":
		score += healthWeightExercise
	case errors.Is(err, engine.ErrExerciseUnsupported):
		if structureIntact {
			score += healthWeightExercise
		} else {
			deductions = append(deductions, "exercise unsupported and structure check failed")
		}
	case err != nil:
		deductions = append(deductions, fmt.Sprintf("exercise failed: %v", err))
	default:
		deductions = append(deductions, fmt.Sprintf("exercise returned status %q", result.Status))
	}

	return score, deductions, fetched.WebhookRef
}

// fetchWithRetry reads the artifact with a bounded linear-backoff retry. The
// read is idempotent, so retrying is safe.
func (m *Manager) fetchWithRetry(ctx context.Context, externalID string) (engine.Artifact, error) {
	var lastErr error
	for attempt := 0; attempt <= m.retry.Retries; attempt++ {
		if attempt > 0 {
			m.metrics.RecordEngineRetry(engine.OpFetchArtifact)
			select {
			case <-ctx.Done():
				return engine.Artifact{}, ctx.Err()
			case <-time.After(time.Duration(attempt) * m.retry.Backoff):
			}
		}
		artifact, err := m.client.FetchArtifact(ctx, externalID)
		if err == nil {
			return artifact, nil
		}
		if errors.Is(err, engine.ErrArtifactNotFound) {
			// The artifact is gone, retrying will not bring it back.
			return engine.Artifact{}, err
		}
		lastErr = err
	}
	return engine.Artifact{}, lastErr
}

// rollback restores the engine to the checkpointed state: deactivate the
// just-created artifact, then reactivate the prior one when the checkpoint
// holds one. Best effort; its own failure surfaces as a distinct
// RollbackFailure and is never hidden behind the triggering error.
func (m *Manager) rollback(ctx context.Context, record *model.DeploymentRecord, logger *zap.Logger) error {
	start := time.Now()
	defer func() {
		m.metrics.RecordDeployStep(model.DeployStepRollback, time.Since(start))
	}()

	var failures []string

	if record.ExternalID != "" {
		if err := m.client.Deactivate(ctx, record.ExternalID); err != nil && !errors.Is(err, engine.ErrArtifactNotFound) {
			failures = append(failures, fmt.Sprintf("deactivate %s: %v", record.ExternalID, err))
		}
	}
	if record.Checkpoint.PriorActive && record.Checkpoint.PriorExternalID != "" {
		if err := m.client.Activate(ctx, record.Checkpoint.PriorExternalID); err != nil {
			failures = append(failures, fmt.Sprintf("reactivate prior %s: %v", record.Checkpoint.PriorExternalID, err))
		}
	}

	if len(failures) > 0 {
		m.metrics.RecordRollback("failed")
		logger.Error("rollback failed", zap.Strings("failures", failures))
		return model.NewRollbackFailure(strings.Join(failures, "; "))
	}
	m.metrics.RecordRollback("ok")
	return nil
}

// finish stamps the record's terminal state and completion time.
func (m *Manager) finish(record *model.DeploymentRecord, state string) {
	record.State = state
	now := time.Now().UTC()
	record.FinishedAt = &now
	m.metrics.RecordDeployment(state)
}
