package integration

import (
	"strings"
	"testing"

	"github.com/intelogroup/clixen-16ace7b7-sub001/internal/engine"
	"github.com/intelogroup/clixen-16ace7b7-sub001/model"
)

func TestDeploy_createFailureFailsSession(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(OwnerClaims())
	h.Engine.FailNextCreate(400)

	out := deployReportSession(t, h, "sess-create-fail", token)

	if out.Phase != model.PhaseFailed {
		t.Fatalf("phase = %q, want %q (reply: %s)", out.Phase, model.PhaseFailed, out.Reply)
	}
	if !strings.Contains(out.Reply, "deployment step create failed") {
		t.Errorf("reply = %q, want the failing step named", out.Reply)
	}

	// Nothing was changed on the engine, so nothing is rolled back.
	if got := h.Engine.Calls(engine.OpActivate); got != 0 {
		t.Errorf("activate calls = %d, want 0", got)
	}
	if got := h.Engine.Calls(engine.OpDeactivate); got != 0 {
		t.Errorf("deactivate calls = %d, want 0", got)
	}

	sess := h.Status("sess-create-fail", token)
	if sess.Failure == nil {
		t.Fatal("session has no failure record")
	}
	if sess.Failure.Code != model.ErrDeploymentFailure {
		t.Errorf("failure code = %q, want %q", sess.Failure.Code, model.ErrDeploymentFailure)
	}
	if sess.Failure.Phase != model.PhaseDeploying {
		t.Errorf("failure phase = %q, want %q", sess.Failure.Phase, model.PhaseDeploying)
	}
	if sess.Deployment.FailedStep != model.DeployStepCreate {
		t.Errorf("failed step = %q, want %q", sess.Deployment.FailedStep, model.DeployStepCreate)
	}
}

func TestDeploy_activateFailureRollsBack(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(OwnerClaims())
	h.Engine.FailNextActivate(500)

	out := deployReportSession(t, h, "sess-activate-fail", token)

	if out.Phase != model.PhaseFailed {
		t.Fatalf("phase = %q, want %q (reply: %s)", out.Phase, model.PhaseFailed, out.Reply)
	}
	if !strings.Contains(out.Reply, "deployment step activate failed") {
		t.Errorf("reply = %q, want the failing step named", out.Reply)
	}

	// The created artifact was deactivated by the rollback.
	if got := h.Engine.Calls(engine.OpDeactivate); got != 1 {
		t.Errorf("deactivate calls = %d, want 1", got)
	}
	if active := h.Engine.ActiveIDs(); len(active) != 0 {
		t.Errorf("active artifacts = %v, want none", active)
	}
}

func TestDeploy_unhealthyDeploymentRollsBack(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(OwnerClaims())

	// Structure mismatch plus a failing exercise leaves only the activation
	// weight, well below the threshold.
	h.Engine.CorruptFetch(true)
	h.Engine.SetExerciseStatus("failed")

	out := deployReportSession(t, h, "sess-unhealthy", token)

	if out.Phase != model.PhaseRolledBack {
		t.Fatalf("phase = %q, want %q (reply: %s)", out.Phase, model.PhaseRolledBack, out.Reply)
	}
	if !strings.Contains(out.Reply, "was rolled back") {
		t.Errorf("reply = %q, want the rollback stated", out.Reply)
	}

	record := out.Artifacts.Deployment
	if record.State != model.DeploymentRolledBack {
		t.Errorf("deployment state = %q, want %q", record.State, model.DeploymentRolledBack)
	}
	if record.HealthScore != 30 {
		t.Errorf("health score = %d, want 30", record.HealthScore)
	}
	if len(record.Deductions) == 0 {
		t.Error("record carries no deductions")
	}
	if active := h.Engine.ActiveIDs(); len(active) != 0 {
		t.Errorf("active artifacts = %v, want none after rollback", active)
	}
}

func TestDeploy_exerciseUnsupportedFallsBackToStructure(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(OwnerClaims())
	h.Engine.SetExerciseCode(501)

	out := deployReportSession(t, h, "sess-no-exercise", token)

	if out.Phase != model.PhaseMonitoring {
		t.Fatalf("phase = %q, want %q (reply: %s)", out.Phase, model.PhaseMonitoring, out.Reply)
	}
	if out.Artifacts.Deployment.HealthScore != 100 {
		t.Errorf("health score = %d, want 100 via the structural fallback", out.Artifacts.Deployment.HealthScore)
	}
}

func TestDeploy_healthFetchRetriesTransientFailures(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(OwnerClaims())
	h.Engine.FailFetch(1)

	out := deployReportSession(t, h, "sess-flaky-read", token)

	if out.Phase != model.PhaseMonitoring {
		t.Fatalf("phase = %q, want %q (reply: %s)", out.Phase, model.PhaseMonitoring, out.Reply)
	}
	if got := h.Engine.Calls(engine.OpFetchArtifact); got != 2 {
		t.Errorf("fetch calls = %d, want 2 (one transient failure)", got)
	}
}

func TestDeploy_teardownDeactivatesArtifact(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(OwnerClaims())

	out := deployReportSession(t, h, "sess-teardown", token)
	if out.Phase != model.PhaseMonitoring {
		t.Fatalf("phase = %q, want %q (reply: %s)", out.Phase, model.PhaseMonitoring, out.Reply)
	}

	out = h.Say("sess-teardown", 3, "tear it down", token)

	if out.Phase != model.PhaseRolledBack {
		t.Fatalf("phase = %q, want %q", out.Phase, model.PhaseRolledBack)
	}
	if !strings.Contains(out.Reply, "deactivated") {
		t.Errorf("reply = %q, want the deactivation confirmed", out.Reply)
	}
	if active := h.Engine.ActiveIDs(); len(active) != 0 {
		t.Errorf("active artifacts = %v, want none after teardown", active)
	}
}

func TestDeploy_namespaceStablePerTenant(t *testing.T) {
	h := NewTestHarness(t)
	owner := h.GenerateToken(OwnerClaims())
	intruder := h.GenerateToken(IntruderClaims())

	out := deployReportSession(t, h, "sess-ns-one", owner)
	if out.Phase != model.PhaseMonitoring {
		t.Fatalf("first deploy phase = %q (reply: %s)", out.Phase, out.Reply)
	}
	out = deployReportSession(t, h, "sess-ns-two", owner)
	if out.Phase != model.PhaseMonitoring {
		t.Fatalf("second deploy phase = %q (reply: %s)", out.Phase, out.Reply)
	}
	out = deployReportSession(t, h, "sess-ns-other", intruder)
	if out.Phase != model.PhaseMonitoring {
		t.Fatalf("other tenant deploy phase = %q (reply: %s)", out.Phase, out.Reply)
	}

	one := h.Status("sess-ns-one", owner)
	two := h.Status("sess-ns-two", owner)
	other := h.Status("sess-ns-other", intruder)

	if one.Namespace.Prefix != "clx-b00s00" {
		t.Errorf("first tenant prefix = %q, want clx-b00s00", one.Namespace.Prefix)
	}
	if two.Namespace.Prefix != one.Namespace.Prefix {
		t.Errorf("same tenant got prefixes %q and %q, want identical", one.Namespace.Prefix, two.Namespace.Prefix)
	}
	if other.Namespace.Prefix != "clx-b00s01" {
		t.Errorf("second tenant prefix = %q, want clx-b00s01", other.Namespace.Prefix)
	}
}
