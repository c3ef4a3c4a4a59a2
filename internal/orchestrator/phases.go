package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/intelogroup/clixen-16ace7b7-sub001/model"
)

// Explicit control phrases. Matching is whole-message after trimming and
// lowercasing, so ordinary prose never accidentally confirms or tears down.
var (
	confirmPhrases = []string{
		"yes", "yes, build it", "yes build it", "build it", "confirm",
		"go ahead", "deploy it", "ship it", "looks good", "do it",
	}
	teardownPhrases = []string{
		"tear it down", "tear down", "teardown", "roll it back",
		"roll back", "rollback", "undo the deployment", "deactivate it",
	}
	closePhrases = []string{
		"close", "close the session", "done", "we're done", "all set",
		"that's all", "finish",
	}
)

func matchPhrase(text string, phrases []string) bool {
	normalized := strings.ToLower(strings.TrimRight(strings.TrimSpace(text), ".!"))
	for _, p := range phrases {
		if normalized == p {
			return true
		}
	}
	return false
}

// handleUnderstanding extracts intent from free text. Only an explicit
// confirmation advances the phase, and it then drives the automatic
// design -> validate -> deploy chain inside this serialization window.
func (o *Orchestrator) handleUnderstanding(ctx context.Context, sess *model.Session, text string) *model.Outcome {
	if matchPhrase(text, confirmPhrases) {
		if sess.Intent == nil {
			return &model.Outcome{
				Phase: sess.Phase,
				Reply: "There is nothing to build yet. Describe the automation you want first.",
			}
		}
		if !o.transition(ctx, sess, model.PhaseDesigning) {
			return o.failedOutcome(sess)
		}
		return o.runChain(ctx, sess)
	}

	intent, err := o.extractor.Extract(ctx, text, sess.Intent)
	if err != nil {
		o.metrics.RecordExtraction("error")
		if model.IsRecoverable(err) {
			return &model.Outcome{Phase: sess.Phase, Reply: userMessage(err)}
		}
		o.fail(ctx, sess, model.PhaseUnderstanding, err)
		return o.failedOutcome(sess)
	}
	o.metrics.RecordExtraction("ok")
	sess.Intent = intent
	o.audit(ctx, sess, "intent-extracted", map[string]any{"version": intent.Version})

	return &model.Outcome{
		Phase:     sess.Phase,
		Reply:     summarizeIntent(intent),
		Artifacts: &model.Artifacts{Intent: intent},
	}
}

// handleDesigning retries the chain. Free text first refines the intent, so
// the user can correct the request without leaving the phase.
func (o *Orchestrator) handleDesigning(ctx context.Context, sess *model.Session, text string) *model.Outcome {
	if out := o.refineIntent(ctx, sess, text); out != nil {
		return out
	}
	return o.runChain(ctx, sess)
}

// handleValidating retries validation onward after the user addressed a
// validation failure. Free text refines intent and redesigns first.
func (o *Orchestrator) handleValidating(ctx context.Context, sess *model.Session, text string) *model.Outcome {
	if out := o.refineIntent(ctx, sess, text); out != nil {
		return out
	}
	if out := o.runDesign(ctx, sess); out != nil {
		return out
	}
	return o.runValidateAndDeploy(ctx, sess)
}

// handleDeploying answers informationally. A deployment attempt always
// reaches a terminal record state inside the window that started it, so a
// message observing this phase arrived while an attempt is in flight.
func (o *Orchestrator) handleDeploying(sess *model.Session) *model.Outcome {
	return &model.Outcome{
		Phase: sess.Phase,
		Reply: "Your automation is being deployed. Ask again in a moment for the result.",
	}
}

// handleMonitoring serves status, teardown, and close requests for a live
// deployment.
func (o *Orchestrator) handleMonitoring(ctx context.Context, sess *model.Session, text string) *model.Outcome {
	switch {
	case matchPhrase(text, teardownPhrases):
		if err := o.deployer.Teardown(ctx, sess); err != nil {
			o.logger.Error("teardown failed", zap.String("session_id", sess.SessionID), zap.Error(err))
			o.fail(ctx, sess, model.PhaseMonitoring, err)
			return &model.Outcome{
				Phase: sess.Phase,
				Reply: "Tearing the automation down did not fully succeed. An operator has been notified.",
			}
		}
		o.audit(ctx, sess, "deployment-torn-down", nil)
		if !o.transition(ctx, sess, model.PhaseRolledBack) {
			return o.failedOutcome(sess)
		}
		return &model.Outcome{
			Phase:     sess.Phase,
			Reply:     "The automation has been deactivated and the previous state restored.",
			Artifacts: &model.Artifacts{Deployment: sess.Deployment},
		}

	case matchPhrase(text, closePhrases):
		if !o.transition(ctx, sess, model.PhaseCompleted) {
			return o.failedOutcome(sess)
		}
		return &model.Outcome{
			Phase: sess.Phase,
			Reply: "All done. Your automation stays live; start a new session any time to change it.",
		}

	default:
		return &model.Outcome{
			Phase:     sess.Phase,
			Reply:     monitoringStatus(sess),
			Artifacts: &model.Artifacts{Deployment: sess.Deployment},
		}
	}
}

func (o *Orchestrator) handleTerminal(sess *model.Session) *model.Outcome {
	var reply string
	switch sess.Phase {
	case model.PhaseCompleted:
		reply = "This session is complete. Start a new session to build another automation."
	case model.PhaseRolledBack:
		reply = "This session's deployment was rolled back. Start a new session to try again."
	default:
		reply = "This session ended with a failure. Start a new session to try again."
		if sess.Failure != nil {
			reply = fmt.Sprintf("This session ended with a failure (%s). Start a new session to try again.", sess.Failure.Code)
		}
	}
	return &model.Outcome{Phase: sess.Phase, Reply: reply}
}

// refineIntent re-extracts intent from non-trivial free text in the design
// and validation phases. Returns a non-nil outcome only when refinement
// itself should stop the chain.
func (o *Orchestrator) refineIntent(ctx context.Context, sess *model.Session, text string) *model.Outcome {
	if matchPhrase(text, confirmPhrases) || strings.TrimSpace(text) == "" {
		return nil
	}
	intent, err := o.extractor.Extract(ctx, text, sess.Intent)
	if err != nil {
		o.metrics.RecordExtraction("error")
		if model.IsRecoverable(err) {
			return &model.Outcome{Phase: sess.Phase, Reply: userMessage(err)}
		}
		o.fail(ctx, sess, sess.Phase, err)
		return o.failedOutcome(sess)
	}
	o.metrics.RecordExtraction("ok")
	sess.Intent = intent
	o.audit(ctx, sess, "intent-extracted", map[string]any{"version": intent.Version})
	return nil
}

// runChain drives design -> validate -> deploy back to back, stopping at the
// first recoverable error, which keeps the phase for a user retry.
func (o *Orchestrator) runChain(ctx context.Context, sess *model.Session) *model.Outcome {
	if out := o.runDesign(ctx, sess); out != nil {
		return out
	}
	if !o.transition(ctx, sess, model.PhaseValidating) {
		return o.failedOutcome(sess)
	}
	return o.runValidateAndDeploy(ctx, sess)
}

// runDesign produces the candidate graph. Returns a non-nil outcome only
// when the chain must stop here.
func (o *Orchestrator) runDesign(ctx context.Context, sess *model.Session) *model.Outcome {
	graph, err := o.designer.Design(sess.Intent)
	if err != nil {
		o.metrics.RecordDesign(o.designer.LibraryVersion(), "error")
		if model.IsRecoverable(err) {
			return &model.Outcome{Phase: sess.Phase, Reply: userMessage(err)}
		}
		o.fail(ctx, sess, model.PhaseDesigning, err)
		return o.failedOutcome(sess)
	}
	o.metrics.RecordDesign(o.designer.LibraryVersion(), "ok")
	sess.Graph = graph
	o.audit(ctx, sess, "graph-designed", map[string]any{
		"nodes":   len(graph.Nodes),
		"edges":   len(graph.Edges),
		"version": graph.Version,
	})
	return nil
}

// runValidateAndDeploy validates the current graph and, on a pass, runs the
// deployment protocol.
func (o *Orchestrator) runValidateAndDeploy(ctx context.Context, sess *model.Session) *model.Outcome {
	fixed, result := o.validator.Validate(sess.Graph)
	sess.Validation = result
	for _, issue := range result.Issues {
		o.metrics.RecordValidationIssue(issue.Code, issue.Severity)
	}
	for _, fix := range result.AutoFixesApplied {
		o.metrics.RecordAutoFix(fix)
		o.audit(ctx, sess, "auto-fix-applied", map[string]any{"fix": fix})
	}
	if !result.Passed {
		return &model.Outcome{
			Phase:     sess.Phase,
			Reply:     summarizeValidationFailure(result),
			Artifacts: &model.Artifacts{Graph: sess.Graph, Validation: result},
		}
	}
	sess.Graph = fixed
	o.audit(ctx, sess, "graph-validated", map[string]any{
		"auto_fixes": len(result.AutoFixesApplied),
	})

	if !o.transition(ctx, sess, model.PhaseDeploying) {
		return o.failedOutcome(sess)
	}
	return o.runDeploy(ctx, sess)
}

// runDeploy runs the deployment protocol to its terminal state and maps that
// state onto the session phase.
func (o *Orchestrator) runDeploy(ctx context.Context, sess *model.Session) *model.Outcome {
	record, err := o.deployer.Deploy(ctx, sess)
	if record != nil {
		o.audit(ctx, sess, "deployment-finished", map[string]any{
			"state":        record.State,
			"health_score": record.HealthScore,
			"failed_step":  record.FailedStep,
		})
	}
	if err != nil {
		o.logger.Warn("deployment failed",
			zap.String("session_id", sess.SessionID),
			zap.String("code", model.ErrorCode(err)),
			zap.Error(err))
		if record != nil && record.State == model.DeploymentRolledBack {
			if !o.transition(ctx, sess, model.PhaseRolledBack) {
				return o.failedOutcome(sess)
			}
			return &model.Outcome{
				Phase: sess.Phase,
				Reply: fmt.Sprintf(
					"The automation did not pass its post-deployment health check (score %d) and was rolled back. Your previous state is restored.",
					record.HealthScore),
				Artifacts: &model.Artifacts{Deployment: record},
			}
		}
		o.fail(ctx, sess, model.PhaseDeploying, err)
		return &model.Outcome{
			Phase:     sess.Phase,
			Reply:     userMessage(err),
			Artifacts: &model.Artifacts{Deployment: record},
		}
	}

	if !o.transition(ctx, sess, model.PhaseMonitoring) {
		return o.failedOutcome(sess)
	}
	reply := fmt.Sprintf("Your automation is live and healthy (health score %d).", record.HealthScore)
	if record.WebhookRef != "" {
		reply += " It can be triggered via its webhook endpoint; see the attached details."
	}
	return &model.Outcome{
		Phase:     sess.Phase,
		Reply:     reply,
		Artifacts: &model.Artifacts{Deployment: record, Namespace: sess.Namespace, Graph: sess.Graph},
	}
}

func (o *Orchestrator) failedOutcome(sess *model.Session) *model.Outcome {
	reply := "Something went wrong and this session cannot continue. Please start a new session."
	return &model.Outcome{Phase: sess.Phase, Reply: reply}
}

// userMessage renders an error for the reply text. Envelope messages are
// written for users; anything else is masked.
func userMessage(err error) string {
	switch model.ErrorCode(err) {
	case model.ErrInternalError:
		return "An unexpected error occurred. Please try again."
	default:
		if envelope, ok := err.(*model.ErrorEnvelope); ok {
			return envelope.Message
		}
		return "An unexpected error occurred. Please try again."
	}
}

func summarizeIntent(intent *model.Intent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Here is what I understood: %s.", intent.Goal)
	fmt.Fprintf(&b, " Trigger: %s.", intent.Trigger)
	if len(intent.Steps) > 0 {
		actions := make([]string, len(intent.Steps))
		for i, step := range intent.Steps {
			actions[i] = step.Action
		}
		fmt.Fprintf(&b, " Steps: %s.", strings.Join(actions, ", "))
	}
	b.WriteString(` Reply "yes, build it" to proceed, or keep describing to refine.`)
	return b.String()
}

func summarizeValidationFailure(result *model.ValidationResult) string {
	fatals := result.FatalIssues()
	lines := make([]string, 0, len(fatals))
	for _, issue := range fatals {
		lines = append(lines, issue.Message)
	}
	return fmt.Sprintf("The designed automation has problems that need your input: %s",
		strings.Join(lines, "; "))
}

func monitoringStatus(sess *model.Session) string {
	record := sess.Deployment
	if record == nil {
		return "Your automation session is in monitoring, but no deployment record is available."
	}
	return fmt.Sprintf(
		"Your automation is %s with health score %d. Say \"tear it down\" to deactivate it or \"close\" to finish.",
		record.State, record.HealthScore)
}
