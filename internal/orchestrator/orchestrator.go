// Package orchestrator owns the conversation state machine. It routes each
// incoming message to the component matching the session's current phase,
// applies the result, and persists the session before replying. Routing is
// phase-driven: the stored phase alone decides the handler, message content
// never does.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/intelogroup/clixen-16ace7b7-sub001/internal/config"
	"github.com/intelogroup/clixen-16ace7b7-sub001/internal/session"
	"github.com/intelogroup/clixen-16ace7b7-sub001/model"
)

// IntentExtractor turns free text into a structured intent.
type IntentExtractor interface {
	Extract(ctx context.Context, text string, prior *model.Intent) (*model.Intent, error)
}

// GraphDesigner turns a confirmed intent into a candidate graph.
type GraphDesigner interface {
	Design(intent *model.Intent) (*model.Graph, error)
	LibraryVersion() string
}

// GraphValidator checks a candidate graph, returning the possibly auto-fixed
// graph and the accumulated result.
type GraphValidator interface {
	Validate(graph *model.Graph) (*model.Graph, *model.ValidationResult)
}

// Deployer runs the deployment protocol to a terminal record state.
type Deployer interface {
	Deploy(ctx context.Context, sess *model.Session) (*model.DeploymentRecord, error)
	Teardown(ctx context.Context, sess *model.Session) error
}

// Metrics is the subset of metric recorders the orchestrator emits to.
type Metrics interface {
	RecordMessage(phase, outcome string, duration time.Duration)
	RecordPhaseTransition(from, to string)
	RecordReplayDetected()
	RecordSessionCreated()
	RecordSessionArchived(reason string)
	RecordExtraction(status string)
	RecordDesign(template, status string)
	RecordValidationIssue(code, severity string)
	RecordAutoFix(code string)
}

type nopMetrics struct{}

func (nopMetrics) RecordMessage(string, string, time.Duration) {}
func (nopMetrics) RecordPhaseTransition(string, string)        {}
func (nopMetrics) RecordReplayDetected()                       {}
func (nopMetrics) RecordSessionCreated()                       {}
func (nopMetrics) RecordSessionArchived(string)                {}
func (nopMetrics) RecordExtraction(string)                     {}
func (nopMetrics) RecordDesign(string, string)                 {}
func (nopMetrics) RecordValidationIssue(string, string)        {}
func (nopMetrics) RecordAutoFix(string)                        {}

// Orchestrator serializes per-session work and drives phases forward. All
// session mutation happens here, under the session's lock stripe.
type Orchestrator struct {
	store     session.Store
	replay    session.ReplayCache
	extractor IntentExtractor
	designer  GraphDesigner
	validator GraphValidator
	deployer  Deployer
	locks     *stripedLocks
	replayTTL time.Duration
	idle      time.Duration
	sweep     time.Duration
	metrics   Metrics
	logger    *zap.Logger
}

// New creates an Orchestrator.
func New(
	store session.Store,
	replay session.ReplayCache,
	extractor IntentExtractor,
	designer GraphDesigner,
	validator GraphValidator,
	deployer Deployer,
	orchCfg config.OrchestratorConfig,
	replayCfg config.ReplayConfig,
	metrics Metrics,
	logger *zap.Logger,
) *Orchestrator {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	replayTTL := replayCfg.DefaultTTL
	if replayTTL <= 0 {
		replayTTL = 24 * time.Hour
	}
	return &Orchestrator{
		store:     store,
		replay:    replay,
		extractor: extractor,
		designer:  designer,
		validator: validator,
		deployer:  deployer,
		locks:     newStripedLocks(orchCfg.LockStripes),
		replayTTL: replayTTL,
		idle:      orchCfg.IdleTimeout,
		sweep:     orchCfg.ArchiveSweepInterval,
		metrics:   metrics,
		logger:    logger,
	}
}

// HandleMessage processes one user message for a session and returns the
// outcome. The session is created on first contact. Messages carry a client
// sequence number; a sequence at or below the session's high-water mark is a
// redelivery and returns the recorded prior outcome without re-executing any
// side effects.
func (o *Orchestrator) HandleMessage(ctx context.Context, sessionID, text string, seq uint64) (*model.Outcome, error) {
	rctx := model.RequestContextFrom(ctx)
	if rctx == nil || rctx.TenantID == "" {
		return nil, model.NewUnauthorizedError("missing caller identity")
	}

	mu := o.locks.lock(sessionID)
	defer mu.Unlock()

	start := time.Now()

	sess, err := o.store.Load(ctx, sessionID)
	if err != nil {
		o.logger.Error("session load failed", zap.String("session_id", sessionID), zap.Error(err))
		return nil, model.NewInternalError()
	}
	if sess == nil {
		sess = o.newSession(ctx, sessionID, rctx)
	}
	if sess.TenantID != rctx.TenantID {
		return nil, model.NewForbiddenError("session belongs to another tenant")
	}
	if sess.Archived {
		return nil, model.NewSessionArchivedError()
	}

	// Redelivered message: answer from the replay record.
	if seq > 0 && seq <= sess.LastSeq {
		return o.replayed(ctx, sess, seq)
	}

	sess.Messages = append(sess.Messages, model.Message{
		Role:      model.RoleUser,
		Text:      text,
		Timestamp: time.Now().UTC(),
	})
	if seq > sess.LastSeq {
		sess.LastSeq = seq
	}

	outcome := o.dispatch(ctx, sess, text)

	sess.Messages = append(sess.Messages, model.Message{
		Role:      model.RoleAssistant,
		Text:      outcome.Reply,
		Timestamp: time.Now().UTC(),
	})

	if err := o.store.Save(ctx, sess); err != nil {
		o.logger.Error("session save failed", zap.String("session_id", sessionID), zap.Error(err))
		o.metrics.RecordMessage(string(sess.Phase), "save-error", time.Since(start))
		return nil, model.NewInternalError()
	}
	if seq > 0 {
		if err := o.replay.Put(ctx, sessionID, seq, *outcome, o.replayTTL); err != nil {
			// The outcome is durable in the session; a cold replay cache only
			// degrades redelivery answers.
			o.logger.Warn("replay record failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}

	o.metrics.RecordMessage(string(outcome.Phase), "ok", time.Since(start))
	return outcome, nil
}

// GetStatus returns a read-only projection of the session.
func (o *Orchestrator) GetStatus(ctx context.Context, sessionID string) (*model.Session, error) {
	rctx := model.RequestContextFrom(ctx)
	if rctx == nil || rctx.TenantID == "" {
		return nil, model.NewUnauthorizedError("missing caller identity")
	}
	sess, err := o.store.Load(ctx, sessionID)
	if err != nil {
		o.logger.Error("session load failed", zap.String("session_id", sessionID), zap.Error(err))
		return nil, model.NewInternalError()
	}
	if sess == nil {
		return nil, model.NewNotFoundError(fmt.Sprintf("session %q not found", sessionID))
	}
	if sess.TenantID != rctx.TenantID {
		return nil, model.NewForbiddenError("session belongs to another tenant")
	}
	return sess, nil
}

// dispatch routes the message by phase. The switch is exhaustive over the
// closed phase set; an unknown stored phase is a corruption signal handled as
// a concurrency violation.
func (o *Orchestrator) dispatch(ctx context.Context, sess *model.Session, text string) *model.Outcome {
	switch sess.Phase {
	case model.PhaseUnderstanding:
		return o.handleUnderstanding(ctx, sess, text)
	case model.PhaseDesigning:
		return o.handleDesigning(ctx, sess, text)
	case model.PhaseValidating:
		return o.handleValidating(ctx, sess, text)
	case model.PhaseDeploying:
		return o.handleDeploying(sess)
	case model.PhaseMonitoring:
		return o.handleMonitoring(ctx, sess, text)
	case model.PhaseCompleted, model.PhaseFailed, model.PhaseRolledBack:
		return o.handleTerminal(sess)
	default:
		violation := model.NewConcurrencyViolation(fmt.Sprintf(
			"session %q carries unknown phase %q", sess.SessionID, sess.Phase))
		o.logger.Error("phase dispatch failed", zap.String("session_id", sess.SessionID), zap.Error(violation))
		o.fail(ctx, sess, sess.Phase, violation)
		return &model.Outcome{
			Phase: sess.Phase,
			Reply: "Something went wrong with this session. Please start a new one.",
		}
	}
}

func (o *Orchestrator) newSession(ctx context.Context, sessionID string, rctx *model.RequestContext) *model.Session {
	now := time.Now().UTC()
	sess := &model.Session{
		SessionID: sessionID,
		TenantID:  rctx.TenantID,
		Phase:     model.PhaseUnderstanding,
		CreatedAt: now,
		UpdatedAt: now,
	}
	o.metrics.RecordSessionCreated()
	o.audit(ctx, sess, "session-created", nil)
	o.logger.Info("session created",
		zap.String("session_id", sessionID),
		zap.String("tenant_id", rctx.TenantID))
	return sess
}

func (o *Orchestrator) replayed(ctx context.Context, sess *model.Session, seq uint64) (*model.Outcome, error) {
	o.metrics.RecordReplayDetected()
	recorded, found, err := o.replay.Get(ctx, sess.SessionID, seq)
	if err != nil {
		o.logger.Warn("replay lookup failed", zap.String("session_id", sess.SessionID), zap.Error(err))
	}
	if found {
		out := *recorded
		out.Replayed = true
		return &out, nil
	}
	// The record aged out of the cache; the sequence check still proves this
	// message was already handled.
	return &model.Outcome{
		Phase:    sess.Phase,
		Reply:    "This message was already processed.",
		Replayed: true,
	}, nil
}

// transition advances the session phase, enforcing the monotonicity
// invariant. A refused transition is an orchestrator bug and forces failed.
func (o *Orchestrator) transition(ctx context.Context, sess *model.Session, next model.Phase) bool {
	if !sess.Phase.CanTransitionTo(next) {
		violation := model.NewConcurrencyViolation(fmt.Sprintf(
			"illegal phase transition %s -> %s for session %q", sess.Phase, next, sess.SessionID))
		o.logger.Error("phase transition refused", zap.Error(violation))
		o.fail(ctx, sess, sess.Phase, violation)
		return false
	}
	from := sess.Phase
	sess.Phase = next
	o.metrics.RecordPhaseTransition(string(from), string(next))
	o.audit(ctx, sess, "phase-transition", map[string]any{
		"from": string(from),
		"to":   string(next),
	})
	return true
}

// fail moves the session to the failed phase recording the originating phase
// and error. Already-terminal sessions keep their phase.
func (o *Orchestrator) fail(ctx context.Context, sess *model.Session, origin model.Phase, err error) {
	code := model.ErrorCode(err)
	sess.Failure = &model.FailureRecord{
		Phase:   origin,
		Code:    code,
		Message: err.Error(),
	}
	if sess.Phase.Terminal() {
		return
	}
	from := sess.Phase
	sess.Phase = model.PhaseFailed
	o.metrics.RecordPhaseTransition(string(from), string(model.PhaseFailed))
	o.audit(ctx, sess, "session-failed", map[string]any{
		"origin": string(origin),
		"code":   code,
	})
}

func (o *Orchestrator) audit(ctx context.Context, sess *model.Session, event string, data map[string]any) {
	actor := ""
	if rctx := model.RequestContextFrom(ctx); rctx != nil {
		actor = rctx.SubjectID
	}
	evt := model.SessionEvent{
		ID:        uuid.NewString(),
		SessionID: sess.SessionID,
		Phase:     sess.Phase,
		Event:     event,
		ActorID:   actor,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
	if err := o.store.AppendAuditEvent(ctx, evt); err != nil {
		o.logger.Warn("audit append failed",
			zap.String("session_id", sess.SessionID),
			zap.String("event", event),
			zap.Error(err))
	}
}
