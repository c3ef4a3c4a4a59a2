package integration

import (
	"strings"
	"testing"
	"time"

	"github.com/intelogroup/clixen-16ace7b7-sub001/internal/config"
	"github.com/intelogroup/clixen-16ace7b7-sub001/internal/engine"
	"github.com/intelogroup/clixen-16ace7b7-sub001/model"
)

func TestResilience_engineOutageTripsBreaker(t *testing.T) {
	h := NewTestHarness(t, WithBreaker(config.CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          30 * time.Second,
	}))
	token := h.GenerateToken(OwnerClaims())
	h.Engine.SetOutage(true)

	// Two sessions fail against the live-but-erroring engine, reaching the
	// breaker's consecutive-failure threshold.
	for _, sessionID := range []string{"sess-outage-1", "sess-outage-2"} {
		out := deployReportSession(t, h, sessionID, token)
		if out.Phase != model.PhaseFailed {
			t.Fatalf("%s phase = %q, want %q (reply: %s)", sessionID, out.Phase, model.PhaseFailed, out.Reply)
		}
	}
	if got := h.Engine.Calls(engine.OpCreateArtifact); got != 2 {
		t.Fatalf("create calls = %d, want 2", got)
	}

	// The third attempt fails fast without reaching the engine.
	out := deployReportSession(t, h, "sess-outage-3", token)
	if out.Phase != model.PhaseFailed {
		t.Fatalf("phase = %q, want %q (reply: %s)", out.Phase, model.PhaseFailed, out.Reply)
	}
	if !strings.Contains(out.Reply, "temporarily unavailable") {
		t.Errorf("reply = %q, want the engine outage named", out.Reply)
	}
	if got := h.Engine.Calls(engine.OpCreateArtifact); got != 2 {
		t.Errorf("create calls = %d, want 2 (breaker must fail fast)", got)
	}
}

func TestResilience_namespacePoolExhaustion(t *testing.T) {
	h := NewTestHarness(t, WithNamespacePool(1, 1))
	owner := h.GenerateToken(OwnerClaims())
	intruder := h.GenerateToken(IntruderClaims())

	out := deployReportSession(t, h, "sess-cap-owner", owner)
	if out.Phase != model.PhaseMonitoring {
		t.Fatalf("first tenant phase = %q, want %q (reply: %s)", out.Phase, model.PhaseMonitoring, out.Reply)
	}

	out = deployReportSession(t, h, "sess-cap-other", intruder)
	if out.Phase != model.PhaseFailed {
		t.Fatalf("second tenant phase = %q, want %q (reply: %s)", out.Phase, model.PhaseFailed, out.Reply)
	}
	if !strings.Contains(out.Reply, "namespace pool exhausted") {
		t.Errorf("reply = %q, want the pool exhaustion named", out.Reply)
	}

	sess := h.Status("sess-cap-other", intruder)
	if sess.Failure == nil || sess.Failure.Code != model.ErrCapacity {
		t.Errorf("failure record = %+v, want code %s", sess.Failure, model.ErrCapacity)
	}

	// The first tenant's deployment is unaffected.
	if active := h.Engine.ActiveIDs(); len(active) != 1 {
		t.Errorf("active artifacts = %v, want the first tenant's one", active)
	}
}

func TestResilience_generationBackendErrorIsRecoverable(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(OwnerClaims())

	h.Generation.FailNext(500)
	out := h.Say("sess-gen-down", 1, "Fetch the sales report every morning and email it", token)

	if out.Phase != model.PhaseUnderstanding {
		t.Errorf("phase = %q, want %q", out.Phase, model.PhaseUnderstanding)
	}
	if !strings.Contains(out.Reply, "try rephrasing") {
		t.Errorf("reply = %q, want a retry prompt", out.Reply)
	}

	h.Generation.Reply(reportIntentReply())
	out = h.Say("sess-gen-down", 2, "Fetch the sales report every morning and email it", token)
	if out.Artifacts == nil || out.Artifacts.Intent == nil {
		t.Fatal("retry after generation outage produced no intent")
	}
}
