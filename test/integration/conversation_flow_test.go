package integration

import (
	"strings"
	"testing"

	"github.com/intelogroup/clixen-16ace7b7-sub001/internal/engine"
	"github.com/intelogroup/clixen-16ace7b7-sub001/model"
)

// reportIntentReply is the generation output for the canonical scheduled
// report automation used across the flow tests.
func reportIntentReply() string {
	return IntentReply("Email the daily sales report", model.TriggerSchedule,
		Step("fetch", map[string]any{"url": "https://api.acme.example.com/report"}),
		Step("notify", map[string]any{"channel": "email"}))
}

// deployReportSession drives a session from first contact to a deployment
// attempt and returns the confirmation outcome.
func deployReportSession(t *testing.T, h *TestHarness, sessionID, token string) *model.Outcome {
	t.Helper()

	h.Generation.Reply(reportIntentReply())
	out := h.Say(sessionID, 1, "Every morning fetch the sales report and email it to me", token)
	if out.Phase != model.PhaseUnderstanding {
		t.Fatalf("phase after describe = %q, want %q", out.Phase, model.PhaseUnderstanding)
	}
	return h.Say(sessionID, 2, "yes, build it", token)
}

func TestConversation_happyPath(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(OwnerClaims())

	h.Generation.Reply(reportIntentReply())
	out := h.Say("sess-happy", 1, "Every morning fetch the sales report and email it to me", token)

	if out.Phase != model.PhaseUnderstanding {
		t.Fatalf("phase = %q, want %q", out.Phase, model.PhaseUnderstanding)
	}
	if !strings.Contains(out.Reply, "Here is what I understood") {
		t.Errorf("reply = %q, want an intent summary", out.Reply)
	}
	if out.Artifacts == nil || out.Artifacts.Intent == nil {
		t.Fatal("outcome carries no intent artifact")
	}
	if out.Artifacts.Intent.Version != 1 {
		t.Errorf("intent version = %d, want 1", out.Artifacts.Intent.Version)
	}

	out = h.Say("sess-happy", 2, "yes, build it", token)

	if out.Phase != model.PhaseMonitoring {
		t.Fatalf("phase = %q, want %q (reply: %s)", out.Phase, model.PhaseMonitoring, out.Reply)
	}
	if !strings.Contains(out.Reply, "live and healthy (health score 100)") {
		t.Errorf("reply = %q, want a healthy deployment confirmation", out.Reply)
	}
	record := out.Artifacts.Deployment
	if record == nil {
		t.Fatal("outcome carries no deployment artifact")
	}
	if record.State != model.DeploymentMonitoring {
		t.Errorf("deployment state = %q, want %q", record.State, model.DeploymentMonitoring)
	}
	if record.HealthScore != 100 {
		t.Errorf("health score = %d, want 100", record.HealthScore)
	}
	if out.Artifacts.Namespace == nil || out.Artifacts.Namespace.Prefix != "clx-b00s00" {
		t.Errorf("namespace artifact = %+v, want prefix clx-b00s00", out.Artifacts.Namespace)
	}

	// The engine saw one full protocol run and holds one active artifact.
	for op, want := range map[string]int{
		engine.OpCreateArtifact: 1,
		engine.OpActivate:       1,
		engine.OpFetchArtifact:  1,
		engine.OpExercise:       1,
		engine.OpDeactivate:     0,
	} {
		if got := h.Engine.Calls(op); got != want {
			t.Errorf("engine %s calls = %d, want %d", op, got, want)
		}
	}
	artifact, ok := h.Engine.Artifact(record.ExternalID)
	if !ok {
		t.Fatalf("engine holds no artifact %q", record.ExternalID)
	}
	if !artifact.Active {
		t.Error("deployed artifact is not active")
	}
	if !strings.HasPrefix(artifact.Name, "clx-b00s00-") {
		t.Errorf("artifact name = %q, want the tenant namespace prefix", artifact.Name)
	}
	// Schedule trigger, fetch, notify.
	if len(artifact.Nodes) != 3 {
		t.Errorf("artifact has %d nodes, want 3", len(artifact.Nodes))
	}

	sess := h.Status("sess-happy", token)
	if sess.Phase != model.PhaseMonitoring {
		t.Errorf("status phase = %q, want %q", sess.Phase, model.PhaseMonitoring)
	}
	if sess.TenantID != "acme-corp" {
		t.Errorf("tenant = %q, want acme-corp", sess.TenantID)
	}
	if sess.LastSeq != 2 {
		t.Errorf("last seq = %d, want 2", sess.LastSeq)
	}
	if len(sess.Messages) != 4 {
		t.Errorf("message log holds %d entries, want 4", len(sess.Messages))
	}
}

func TestConversation_confirmBeforeDescribing(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(OwnerClaims())

	out := h.Say("sess-eager", 1, "yes, build it", token)

	if out.Phase != model.PhaseUnderstanding {
		t.Errorf("phase = %q, want %q", out.Phase, model.PhaseUnderstanding)
	}
	if !strings.Contains(out.Reply, "nothing to build yet") {
		t.Errorf("reply = %q, want a prompt to describe first", out.Reply)
	}
	if got := h.Generation.Calls(); got != 0 {
		t.Errorf("generation calls = %d, want 0 for a bare confirmation", got)
	}
}

func TestConversation_refinementReplacesIntent(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(OwnerClaims())

	h.Generation.Reply(reportIntentReply())
	out := h.Say("sess-refine", 1, "Fetch the sales report every morning and email it", token)
	if out.Artifacts.Intent.Version != 1 {
		t.Fatalf("intent version = %d, want 1", out.Artifacts.Intent.Version)
	}

	h.Generation.Reply(IntentReply("Post the daily sales report to Slack", model.TriggerSchedule,
		Step("fetch", map[string]any{"url": "https://api.acme.example.com/report"}),
		Step("notify", map[string]any{"channel": "slack"})))
	out = h.Say("sess-refine", 2, "Actually post it to Slack instead of email", token)

	if out.Phase != model.PhaseUnderstanding {
		t.Errorf("phase = %q, want %q", out.Phase, model.PhaseUnderstanding)
	}
	if out.Artifacts.Intent.Version != 2 {
		t.Errorf("intent version = %d, want 2 after refinement", out.Artifacts.Intent.Version)
	}
	if got := out.Artifacts.Intent.Steps[1].Parameters["channel"]; got != "slack" {
		t.Errorf("notify channel = %v, want slack", got)
	}

	out = h.Say("sess-refine", 3, "ship it", token)
	if out.Phase != model.PhaseMonitoring {
		t.Fatalf("phase = %q, want %q (reply: %s)", out.Phase, model.PhaseMonitoring, out.Reply)
	}
}

func TestConversation_unparseableGenerationOutputKeepsPhase(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(OwnerClaims())

	h.Generation.Reply("Sorry, I cannot help with that.")
	out := h.Say("sess-retry", 1, "do the thing with the stuff", token)

	if out.Phase != model.PhaseUnderstanding {
		t.Errorf("phase = %q, want %q", out.Phase, model.PhaseUnderstanding)
	}
	if !strings.Contains(out.Reply, "couldn't understand") {
		t.Errorf("reply = %q, want a rephrase prompt", out.Reply)
	}

	// The session survives the failed extraction and accepts a retry.
	h.Generation.Reply(reportIntentReply())
	out = h.Say("sess-retry", 2, "Fetch the sales report every morning and email it", token)
	if out.Artifacts == nil || out.Artifacts.Intent == nil {
		t.Fatal("retry after a failed extraction produced no intent")
	}
}

func TestConversation_validationFailureAndRecovery(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(OwnerClaims())

	// A numeric url fails the parameter type check with no auto-fix.
	h.Generation.Reply(IntentReply("Email the daily sales report", model.TriggerSchedule,
		Step("fetch", map[string]any{"url": 42}),
		Step("notify", map[string]any{"channel": "email"})))
	h.Say("sess-fix", 1, "Fetch report 42 every morning and email it", token)
	out := h.Say("sess-fix", 2, "yes, build it", token)

	if out.Phase != model.PhaseValidating {
		t.Fatalf("phase = %q, want %q (reply: %s)", out.Phase, model.PhaseValidating, out.Reply)
	}
	if !strings.Contains(out.Reply, "problems that need your input") {
		t.Errorf("reply = %q, want a validation failure summary", out.Reply)
	}
	if got := h.Engine.Calls(engine.OpCreateArtifact); got != 0 {
		t.Errorf("engine create calls = %d, want 0 before validation passes", got)
	}

	// Correcting the request re-extracts, redesigns, and deploys.
	h.Generation.Reply(reportIntentReply())
	out = h.Say("sess-fix", 3, "use https://api.acme.example.com/report as the url", token)

	if out.Phase != model.PhaseMonitoring {
		t.Fatalf("phase = %q, want %q (reply: %s)", out.Phase, model.PhaseMonitoring, out.Reply)
	}
}

func TestConversation_monitoringStatusAndClose(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(OwnerClaims())

	out := deployReportSession(t, h, "sess-close", token)
	if out.Phase != model.PhaseMonitoring {
		t.Fatalf("phase = %q, want %q (reply: %s)", out.Phase, model.PhaseMonitoring, out.Reply)
	}

	out = h.Say("sess-close", 3, "how is it doing?", token)
	if out.Phase != model.PhaseMonitoring {
		t.Errorf("phase = %q, want %q", out.Phase, model.PhaseMonitoring)
	}
	if !strings.Contains(out.Reply, "health score") {
		t.Errorf("reply = %q, want a health status", out.Reply)
	}

	out = h.Say("sess-close", 4, "close", token)
	if out.Phase != model.PhaseCompleted {
		t.Errorf("phase = %q, want %q", out.Phase, model.PhaseCompleted)
	}

	// Closing must leave the automation running.
	if active := h.Engine.ActiveIDs(); len(active) != 1 {
		t.Errorf("active artifacts after close = %v, want one", active)
	}

	out = h.Say("sess-close", 5, "one more thing", token)
	if !strings.Contains(out.Reply, "session is complete") {
		t.Errorf("reply = %q, want a terminal notice", out.Reply)
	}
}

func TestConversation_webhookAutomationSurfacesEndpoint(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(OwnerClaims())
	h.Engine.SetWebhookRef("https://engine.test/hooks/abc123")

	h.Generation.Reply(IntentReply("Relay incoming webhooks to Slack", model.TriggerWebhook,
		Step("transform", map[string]any{"expression": "$.payload"}),
		Step("notify", map[string]any{"channel": "slack"})))
	h.Say("sess-hook", 1, "Whenever my webhook fires, reshape the payload and post it to Slack", token)
	out := h.Say("sess-hook", 2, "go ahead", token)

	if out.Phase != model.PhaseMonitoring {
		t.Fatalf("phase = %q, want %q (reply: %s)", out.Phase, model.PhaseMonitoring, out.Reply)
	}
	if !strings.Contains(out.Reply, "webhook endpoint") {
		t.Errorf("reply = %q, want a webhook hint", out.Reply)
	}
	if got := out.Artifacts.Deployment.WebhookRef; got != "https://engine.test/hooks/abc123" {
		t.Errorf("webhook ref = %q, want the engine's reference", got)
	}
}
