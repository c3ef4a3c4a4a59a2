package deploy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/intelogroup/clixen-16ace7b7-sub001/internal/config"
	"github.com/intelogroup/clixen-16ace7b7-sub001/internal/engine"
	"github.com/intelogroup/clixen-16ace7b7-sub001/internal/namespace"
	"github.com/intelogroup/clixen-16ace7b7-sub001/model"
)

// fakeEngine is an in-memory engine.Client that records calls and can be
// programmed to fail individual operations.
type fakeEngine struct {
	calls     []string
	artifacts map[string]*engine.Artifact
	nextID    int

	createErr      error
	activateErr    map[string]error
	deactivateErr  map[string]error
	fetchErr       error
	fetchFailures  int // fail the first N fetches, then succeed
	exerciseErr    error
	exerciseStatus string
	corruptFetch   bool // drop a node from fetched artifacts
	webhookRef     string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		artifacts:      make(map[string]*engine.Artifact),
		activateErr:    make(map[string]error),
		deactivateErr:  make(map[string]error),
		exerciseStatus: "success",
	}
}

func (f *fakeEngine) CreateArtifact(_ context.Context, artifact engine.Artifact) (string, error) {
	f.calls = append(f.calls, "create")
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	id := fmt.Sprintf("ext-%d", f.nextID)
	stored := artifact
	stored.ID = id
	stored.WebhookRef = f.webhookRef
	f.artifacts[id] = &stored
	return id, nil
}

func (f *fakeEngine) Activate(_ context.Context, externalID string) error {
	f.calls = append(f.calls, "activate:"+externalID)
	if err := f.activateErr[externalID]; err != nil {
		return err
	}
	a, ok := f.artifacts[externalID]
	if !ok {
		return engine.ErrArtifactNotFound
	}
	a.Active = true
	return nil
}

func (f *fakeEngine) Deactivate(_ context.Context, externalID string) error {
	f.calls = append(f.calls, "deactivate:"+externalID)
	if err := f.deactivateErr[externalID]; err != nil {
		return err
	}
	a, ok := f.artifacts[externalID]
	if !ok {
		return engine.ErrArtifactNotFound
	}
	a.Active = false
	return nil
}

func (f *fakeEngine) FetchArtifact(_ context.Context, externalID string) (engine.Artifact, error) {
	f.calls = append(f.calls, "fetch:"+externalID)
	if f.fetchFailures > 0 {
		f.fetchFailures--
		return engine.Artifact{}, errors.New("transient engine error")
	}
	if f.fetchErr != nil {
		return engine.Artifact{}, f.fetchErr
	}
	a, ok := f.artifacts[externalID]
	if !ok {
		return engine.Artifact{}, engine.ErrArtifactNotFound
	}
	out := *a
	if f.corruptFetch && len(out.Nodes) > 0 {
		out.Nodes = out.Nodes[:len(out.Nodes)-1]
	}
	return out, nil
}

func (f *fakeEngine) Exercise(_ context.Context, externalID string, _ map[string]any) (engine.ExerciseResult, error) {
	f.calls = append(f.calls, "exercise:"+externalID)
	if f.exerciseErr != nil {
		return engine.ExerciseResult{}, f.exerciseErr
	}
	return engine.ExerciseResult{Status: f.exerciseStatus}, nil
}

func (f *fakeEngine) active(externalID string) bool {
	a, ok := f.artifacts[externalID]
	return ok && a.Active
}

type retryCounter struct {
	retries int
}

func (r *retryCounter) RecordDeployment(string)                {}
func (r *retryCounter) RecordDeployStep(string, time.Duration) {}
func (r *retryCounter) RecordHealthScore(int)                  {}
func (r *retryCounter) RecordRollback(string)                  {}
func (r *retryCounter) RecordEngineRetry(string)               { r.retries++ }

func newTestManager(eng engine.Client) *Manager {
	alloc := namespace.NewAllocator(
		namespace.NewMemoryAssignmentStore(),
		config.NamespaceConfig{Buckets: 2, Slots: 2},
		nil,
	)
	return NewManager(eng, alloc,
		config.DeploymentConfig{HealthThreshold: 60},
		config.HealthRetryConfig{Retries: 2, Backoff: time.Millisecond},
		nil, nil)
}

func deployableSession() *model.Session {
	return &model.Session{
		SessionID: "sess-1",
		TenantID:  "tenant-a",
		Phase:     model.PhaseDeploying,
		Graph:     testGraph(),
	}
}

func TestDeploy_happyPath(t *testing.T) {
	eng := newFakeEngine()
	eng.webhookRef = "/hooks/clx-b00s00-sess-1"
	m := newTestManager(eng)

	sess := deployableSession()
	record, err := m.Deploy(context.Background(), sess)
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if record.State != model.DeploymentMonitoring {
		t.Errorf("state = %s, want monitoring", record.State)
	}
	if record.ExternalID == "" {
		t.Error("no external id recorded")
	}
	if record.HealthScore != 100 {
		t.Errorf("health score = %d, want 100", record.HealthScore)
	}
	if record.WebhookRef != eng.webhookRef {
		t.Errorf("webhook ref = %q, want %q", record.WebhookRef, eng.webhookRef)
	}
	if record.FinishedAt == nil {
		t.Error("record has no finish time")
	}
	if sess.Deployment != record {
		t.Error("record not written to session")
	}
	if sess.Namespace == nil {
		t.Fatal("namespace not assigned lazily")
	}
	if !eng.active(record.ExternalID) {
		t.Error("artifact not active on the engine")
	}
}

func TestDeploy_namespaceIsStable(t *testing.T) {
	eng := newFakeEngine()
	m := newTestManager(eng)

	sess := deployableSession()
	if _, err := m.Deploy(context.Background(), sess); err != nil {
		t.Fatalf("first Deploy: %v", err)
	}
	first := *sess.Namespace

	sess.Graph.Version++
	if _, err := m.Deploy(context.Background(), sess); err != nil {
		t.Fatalf("second Deploy: %v", err)
	}
	if *sess.Namespace != first {
		t.Errorf("namespace changed across deployments: %+v -> %+v", first, sess.Namespace)
	}
}

func TestDeploy_noGraph(t *testing.T) {
	m := newTestManager(newFakeEngine())
	sess := deployableSession()
	sess.Graph = nil

	_, err := m.Deploy(context.Background(), sess)
	var env *model.ErrorEnvelope
	if !errors.As(err, &env) || env.Code != model.ErrDeploymentFailure {
		t.Errorf("err = %v, want %s", err, model.ErrDeploymentFailure)
	}
}

func TestDeploy_createFailureNoRollback(t *testing.T) {
	eng := newFakeEngine()
	eng.createErr = errors.New("engine rejected the artifact")
	m := newTestManager(eng)

	sess := deployableSession()
	record, err := m.Deploy(context.Background(), sess)
	if err == nil {
		t.Fatal("expected failure")
	}
	if record.State != model.DeploymentFailed {
		t.Errorf("state = %s, want failed", record.State)
	}
	if record.FailedStep != model.DeployStepCreate {
		t.Errorf("failed step = %s, want create", record.FailedStep)
	}
	for _, call := range eng.calls {
		if call != "create" {
			t.Errorf("unexpected engine call %q after create failure", call)
		}
	}
}

func TestDeploy_activateFailureRollsBack(t *testing.T) {
	eng := newFakeEngine()
	m := newTestManager(eng)

	// Establish a live prior deployment.
	sess := deployableSession()
	prior, err := m.Deploy(context.Background(), sess)
	if err != nil {
		t.Fatalf("prior Deploy: %v", err)
	}

	// The replacement fails to activate.
	eng.activateErr["ext-2"] = errors.New("activation refused")
	sess.Graph.Version++
	record, err := m.Deploy(context.Background(), sess)
	if err == nil {
		t.Fatal("expected failure")
	}
	if record.State != model.DeploymentFailed {
		t.Errorf("state = %s, want failed", record.State)
	}
	if record.FailedStep != model.DeployStepActivate {
		t.Errorf("failed step = %s, want activate", record.FailedStep)
	}
	// Rollback restored the checkpoint: prior active again, replacement down.
	if !eng.active(prior.ExternalID) {
		t.Error("prior artifact not reactivated by rollback")
	}
	if eng.active(record.ExternalID) {
		t.Error("failed artifact left active")
	}
}

func TestDeploy_retirePriorFailureRollsBack(t *testing.T) {
	eng := newFakeEngine()
	m := newTestManager(eng)

	// Establish a live prior deployment.
	sess := deployableSession()
	prior, err := m.Deploy(context.Background(), sess)
	if err != nil {
		t.Fatalf("prior Deploy: %v", err)
	}

	// Retiring the prior artifact fails before activation is attempted.
	eng.deactivateErr[prior.ExternalID] = errors.New("engine busy")
	sess.Graph.Version++
	record, err := m.Deploy(context.Background(), sess)
	if err == nil {
		t.Fatal("expected failure")
	}
	if record.State != model.DeploymentFailed {
		t.Errorf("state = %s, want failed", record.State)
	}
	if record.FailedStep != model.DeployStepRetirePrior {
		t.Errorf("failed step = %s, want retire-prior", record.FailedStep)
	}
	var env *model.ErrorEnvelope
	if !errors.As(err, &env) || env.Code != model.ErrDeploymentFailure {
		t.Fatalf("err = %v, want %s", err, model.ErrDeploymentFailure)
	}
	if !strings.Contains(env.Message, model.DeployStepRetirePrior) {
		t.Errorf("message %q does not name the retire-prior step", env.Message)
	}
	// The replacement never activated; the prior artifact stays live.
	if eng.active(record.ExternalID) {
		t.Error("replacement artifact left active")
	}
	if !eng.active(prior.ExternalID) {
		t.Error("prior artifact no longer active")
	}
	for _, call := range eng.calls {
		if call == "activate:"+record.ExternalID {
			t.Error("replacement activated despite retire-prior failure")
		}
	}
}

func TestDeploy_rollbackFailureSurfaces(t *testing.T) {
	eng := newFakeEngine()
	m := newTestManager(eng)

	sess := deployableSession()
	if _, err := m.Deploy(context.Background(), sess); err != nil {
		t.Fatalf("prior Deploy: %v", err)
	}

	eng.activateErr["ext-2"] = errors.New("activation refused")
	eng.deactivateErr["ext-2"] = errors.New("deactivate also refused")
	sess.Graph.Version++
	_, err := m.Deploy(context.Background(), sess)
	var env *model.ErrorEnvelope
	if !errors.As(err, &env) || env.Code != model.ErrRollbackFailure {
		t.Errorf("err = %v, want %s", err, model.ErrRollbackFailure)
	}
}

func TestDeploy_healthBelowThresholdRollsBack(t *testing.T) {
	eng := newFakeEngine()
	// Structure check and exercise both fail; only the active weight remains.
	eng.corruptFetch = true
	eng.exerciseErr = errors.New("execution timed out")
	m := newTestManager(eng)

	sess := deployableSession()
	record, err := m.Deploy(context.Background(), sess)
	if err == nil {
		t.Fatal("expected health failure")
	}
	var env *model.ErrorEnvelope
	if !errors.As(err, &env) || env.Code != model.ErrDeploymentFailure {
		t.Fatalf("err = %v, want %s", err, model.ErrDeploymentFailure)
	}
	if record.State != model.DeploymentRolledBack {
		t.Errorf("state = %s, want rolled_back", record.State)
	}
	if record.HealthScore != healthWeightActive {
		t.Errorf("score = %d, want %d", record.HealthScore, healthWeightActive)
	}
	if len(record.Deductions) != 2 {
		t.Errorf("deductions = %v, want two", record.Deductions)
	}
	if eng.active(record.ExternalID) {
		t.Error("unhealthy artifact left active")
	}
}

func TestDeploy_exerciseUnsupportedFallsBackToStructure(t *testing.T) {
	eng := newFakeEngine()
	eng.exerciseErr = engine.ErrExerciseUnsupported
	m := newTestManager(eng)

	record, err := m.Deploy(context.Background(), deployableSession())
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if record.HealthScore != 100 {
		t.Errorf("score = %d, want 100 via structural fallback", record.HealthScore)
	}
	if record.State != model.DeploymentMonitoring {
		t.Errorf("state = %s, want monitoring", record.State)
	}
}

func TestDeploy_fetchRetriesThenSucceeds(t *testing.T) {
	eng := newFakeEngine()
	eng.fetchFailures = 2
	metrics := &retryCounter{}

	alloc := namespace.NewAllocator(namespace.NewMemoryAssignmentStore(), config.NamespaceConfig{Buckets: 1, Slots: 1}, nil)
	m := NewManager(eng, alloc,
		config.DeploymentConfig{HealthThreshold: 60},
		config.HealthRetryConfig{Retries: 2, Backoff: time.Millisecond},
		metrics, nil)

	record, err := m.Deploy(context.Background(), deployableSession())
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if record.State != model.DeploymentMonitoring {
		t.Errorf("state = %s, want monitoring", record.State)
	}
	if metrics.retries != 2 {
		t.Errorf("retries = %d, want 2", metrics.retries)
	}
}

func TestDeploy_fetchNotFoundShortCircuits(t *testing.T) {
	eng := newFakeEngine()
	eng.fetchErr = engine.ErrArtifactNotFound
	m := newTestManager(eng)

	record, err := m.Deploy(context.Background(), deployableSession())
	if err == nil {
		t.Fatal("expected health failure")
	}
	if record.State != model.DeploymentRolledBack {
		t.Errorf("state = %s, want rolled_back", record.State)
	}
	fetches := 0
	for _, call := range eng.calls {
		if call == "fetch:ext-1" {
			fetches++
		}
	}
	if fetches != 1 {
		t.Errorf("fetch calls = %d, want 1 (no retry on not-found)", fetches)
	}
}

func TestTeardown(t *testing.T) {
	eng := newFakeEngine()
	m := newTestManager(eng)

	sess := deployableSession()
	record, err := m.Deploy(context.Background(), sess)
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}

	if err := m.Teardown(context.Background(), sess); err != nil {
		t.Fatalf("Teardown: %v", err)
	}
	if record.State != model.DeploymentRolledBack {
		t.Errorf("state = %s, want rolled_back", record.State)
	}
	if eng.active(record.ExternalID) {
		t.Error("artifact still active after teardown")
	}

	// Idempotent: a second teardown is a no-op.
	if err := m.Teardown(context.Background(), sess); err != nil {
		t.Errorf("second Teardown: %v", err)
	}
}

func TestTeardown_noDeploymentIsNoop(t *testing.T) {
	m := newTestManager(newFakeEngine())
	if err := m.Teardown(context.Background(), deployableSession()); err != nil {
		t.Errorf("Teardown without deployment: %v", err)
	}
}
