package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const sweepBatchSize = 100

// RunArchiveSweep periodically archives sessions that are idle past the
// configured timeout or have reached a terminal phase. Blocks until the
// context is cancelled; run it in its own goroutine.
func (o *Orchestrator) RunArchiveSweep(ctx context.Context) {
	if o.sweep <= 0 || o.idle <= 0 {
		return
	}
	ticker := time.NewTicker(o.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.sweepOnce(ctx)
		}
	}
}

func (o *Orchestrator) sweepOnce(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-o.idle)
	candidates, err := o.store.FindIdle(ctx, cutoff, sweepBatchSize)
	if err != nil {
		o.logger.Warn("archive sweep query failed", zap.Error(err))
		return
	}

	for _, sess := range candidates {
		mu := o.locks.lock(sess.SessionID)
		o.archiveOne(ctx, sess.SessionID)
		mu.Unlock()
	}
}

// archiveOne re-reads the session under its lock so a message that arrived
// after the sweep query does not get its session archived underneath it.
func (o *Orchestrator) archiveOne(ctx context.Context, sessionID string) {
	sess, err := o.store.Load(ctx, sessionID)
	if err != nil || sess == nil || sess.Archived {
		return
	}

	reason := "idle"
	if sess.Phase.Terminal() {
		reason = "terminal"
	} else if sess.UpdatedAt.After(time.Now().UTC().Add(-o.idle)) {
		// Touched since the sweep query ran.
		return
	}

	if err := o.store.Archive(ctx, sessionID); err != nil {
		o.logger.Warn("session archive failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	o.metrics.RecordSessionArchived(reason)
	o.audit(ctx, sess, "session-archived", map[string]any{"reason": reason})
	o.logger.Info("session archived",
		zap.String("session_id", sessionID),
		zap.String("reason", reason))
}
