package sessionguard

import (
	"context"
	"time"
)

// terminationCoordinator performs the idempotent teardown of a session:
// cancel watchers, sign out, clear local state, redirect to the entry flow.
// It acts only through the teardown closure the orchestrator hands it; it
// never reaches into watcher internals.
type terminationCoordinator struct {
	provider  IdentityProvider
	state     SessionStateSink
	navigator Navigator
	errors    ErrorSink
	logger    Logger
	activity  ActivitySink
	cfg       Config
	now       func() time.Time
}

// terminate claims the teardown of sess. Callers hold the orchestrator lock,
// which serializes concurrent triggers: only the first to flip the terminating
// guard proceeds, every later signal is a no-op. The guard flip and watcher
// cancellation happen here, under the lock; the returned closure performs the
// I/O phase (sign-out, state clear, redirect) and must be invoked only after
// the lock is released, since the provider may deliver stream events inline
// from SignOut and those re-enter the orchestrator. Returns nil when another
// signal already claimed the termination.
func (tc *terminationCoordinator) terminate(ctx context.Context, sess *Session, reason TerminationReason, teardown func()) func() {
	if sess == nil || sess.terminating {
		return nil
	}
	if !reason.Valid() {
		tc.errors.Report(ErrInvalidReason.WithMetadata(map[string]any{"reason": string(reason)}))
		return nil
	}

	// The guard doubles as the cancellation token for straggling async
	// completions racing this teardown. It is never reset on this Session;
	// a fresh Session starts with its own guard.
	sess.terminating = true

	teardown()

	accountID := sess.AccountID
	generation := sess.Generation

	return func() {
		if err := tc.provider.SignOut(ctx); err != nil {
			tc.logger.Warn("provider sign-out failed account=%s err=%v", accountID, err)
			tc.errors.Report(err)
		}

		// Best effort: local state is cleared regardless of sign-out outcome.
		if err := tc.state.Clear(ctx); err != nil {
			tc.logger.Warn("session state clear failed account=%s err=%v", accountID, err)
			tc.errors.Report(err)
		}

		if tc.cfg.onEntryRoute(tc.navigator.CurrentLocation()) {
			tc.logger.Debug("already on entry route, skipping redirect account=%s", accountID)
		} else if err := tc.navigator.RedirectToEntry(reason, tc.cfg.RedirectHint); err != nil {
			tc.logger.Warn("entry redirect failed account=%s err=%v", accountID, err)
			tc.errors.Report(err)
		}

		tc.recordActivity(ctx, ActivityEvent{
			EventType:  ActivityEventSessionTerminated,
			AccountID:  accountID,
			Generation: generation,
			Reason:     reason,
		})

		tc.logger.Info("session terminated account=%s reason=%s", accountID, reason)
	}
}

func (tc *terminationCoordinator) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = tc.now()
	}
	sink := normalizeActivitySink(tc.activity)
	if err := sink.Record(ctx, event); err != nil {
		tc.logger.Warn("activity sink error: %v", err)
	}
}
