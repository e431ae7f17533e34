package sessionguard

import (
	"context"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// SessionOrchestrator is the single writer for all session-validity state.
// Every watcher callback, timer tick, and probe result funnels through its
// lock, so signals are serialized and never run concurrently for the same
// session.
type SessionOrchestrator struct {
	cfg          Config
	grace        GracePolicy
	provider     IdentityProvider
	store        ProfileStore
	navigator    Navigator
	state        SessionStateSink
	errors       ErrorSink
	logger       Logger
	activity     ActivitySink
	connectivity ConnectivityProbe
	now          func() time.Time

	prober     *missingRecordProber
	terminator *terminationCoordinator

	mu             sync.Mutex
	ctx            context.Context
	started        bool
	generation     uint64
	session        *Session
	watchers       *watcherSet
	cancelIdentity CancelFunc
}

// Option customizes orchestrator construction.
type Option func(*SessionOrchestrator)

// WithConfig overrides the default tuning. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(o *SessionOrchestrator) {
		o.cfg = cfg.withDefaults()
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger Logger) Option {
	return func(o *SessionOrchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithErrorSink sets the diagnostics sink for transient failures.
func WithErrorSink(sink ErrorSink) Option {
	return func(o *SessionOrchestrator) {
		if sink != nil {
			o.errors = sink
		}
	}
}

// WithActivitySink sets the ActivitySink used to publish lifecycle events.
func WithActivitySink(sink ActivitySink) Option {
	return func(o *SessionOrchestrator) {
		o.activity = normalizeActivitySink(sink)
	}
}

// WithStateSink sets the sink that clears locally persisted session state.
func WithStateSink(sink SessionStateSink) Option {
	return func(o *SessionOrchestrator) {
		if sink != nil {
			o.state = sink
		}
	}
}

// WithConnectivityProbe sets the probe consulted before trusting absence.
func WithConnectivityProbe(probe ConnectivityProbe) Option {
	return func(o *SessionOrchestrator) {
		if probe != nil {
			o.connectivity = probe
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) Option {
	return func(o *SessionOrchestrator) {
		if clock != nil {
			o.now = clock
		}
	}
}

// New builds a SessionOrchestrator over the given collaborators.
func New(provider IdentityProvider, store ProfileStore, navigator Navigator, opts ...Option) (*SessionOrchestrator, error) {
	if provider == nil {
		return nil, goerrors.New("identity provider is required", goerrors.CategoryBadInput)
	}
	if store == nil {
		return nil, goerrors.New("profile store is required", goerrors.CategoryBadInput)
	}
	if navigator == nil {
		return nil, goerrors.New("navigator is required", goerrors.CategoryBadInput)
	}

	o := &SessionOrchestrator{
		cfg:          DefaultConfig(),
		provider:     provider,
		store:        store,
		navigator:    navigator,
		state:        noopStateSink{},
		errors:       noopErrorSink{},
		logger:       defLogger{},
		activity:     noopActivitySink{},
		connectivity: alwaysOnline{},
		now:          time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	if err := o.cfg.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid orchestrator config")
	}

	o.grace = o.cfg.gracePolicy()
	o.prober = newMissingRecordProber(store, o.connectivity, o.cfg.ProbeDelay, o.errors, o.logger)
	o.terminator = &terminationCoordinator{
		provider:  provider,
		state:     o.state,
		navigator: navigator,
		errors:    o.errors,
		logger:    o.logger,
		activity:  o.activity,
		cfg:       o.cfg,
		now:       o.now,
	}

	return o, nil
}

// Start subscribes to the identity stream. Idempotent; safe to call once at
// application boot. Termination side effects (sign-out, state clear,
// redirect) are the orchestrator's only observable outputs.
func (o *SessionOrchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return nil
	}
	o.started = true
	o.ctx = ctx
	o.mu.Unlock()

	cancel, err := o.provider.PrincipalStream(ctx, o.handleIdentityEvent)
	if err != nil {
		o.mu.Lock()
		o.started = false
		o.mu.Unlock()
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to subscribe to identity stream")
	}

	o.mu.Lock()
	o.cancelIdentity = cancel
	o.mu.Unlock()
	return nil
}

// Stop cancels the identity subscription and the active watcher set without
// signing the user out; application shutdown is not a termination signal.
func (o *SessionOrchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.started {
		return
	}
	if o.cancelIdentity != nil {
		o.cancelIdentity()
		o.cancelIdentity = nil
	}
	o.clearSessionLocked()
	o.started = false
}

// Snapshot returns a read-only copy of the current session state, if any.
func (o *SessionOrchestrator) Snapshot() (SessionSnapshot, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return SessionSnapshot{}, false
	}
	return o.session.snapshot(), true
}

// handleIdentityEvent services one principal-stream event. State transitions
// run under the lock: the previous watcher set is fully cancelled before the
// new session exists, so no signal destined for the previous account can be
// processed against the new one. I/O side effects run after the unlock.
func (o *SessionOrchestrator) handleIdentityEvent(p *Principal) {
	// Registered before the unlock defer so termination side effects run
	// after the lock is released.
	var finish func()
	defer func() {
		if finish != nil {
			finish()
		}
	}()

	o.mu.Lock()
	defer o.mu.Unlock()

	o.clearSessionLocked()

	if p == nil || p.AccountID == "" {
		o.recordActivityLocked(ActivityEvent{EventType: ActivityEventSessionCleared})
		finish = func() {
			if err := o.state.Clear(o.ctx); err != nil {
				o.logger.Warn("session state clear failed: %v", err)
				o.errors.Report(err)
			}
		}
		return
	}

	o.generation++
	gen := o.generation
	now := o.now()

	createdAt := now
	if p.CreatedAt != nil && !p.CreatedAt.IsZero() {
		createdAt = *p.CreatedAt
	}

	sess := &Session{
		ID:         newSessionID(p.AccountID, gen),
		AccountID:  p.AccountID,
		Generation: gen,
		CreatedAt:  createdAt,
		FreshUntil: o.grace.FreshUntil(createdAt, now),
	}
	o.session = sess

	o.logger.Info("session started account=%s fresh_until=%s", sess.AccountID, sess.FreshUntil.Format(time.RFC3339))

	finish = o.startWatchersLocked(p, gen)

	o.recordActivityLocked(ActivityEvent{
		EventType:  ActivityEventSessionStarted,
		AccountID:  sess.AccountID,
		Generation: gen,
	})
}

// clearSessionLocked cancels the previous watcher set and invalidates every
// callback still scheduled against it. Cancellation always completes before
// a new watcher set is created.
func (o *SessionOrchestrator) clearSessionLocked() {
	if o.watchers != nil {
		o.watchers.cancelAll()
		o.watchers = nil
	}
	if o.session != nil {
		o.prober.Cancel(o.session.AccountID)
		o.session = nil
	}
	o.generation++
}

func (o *SessionOrchestrator) startWatchersLocked(p *Principal, gen uint64) func() {
	ws := &watcherSet{}
	o.watchers = ws
	accountID := p.AccountID

	cancelProfile, err := o.store.WatchRecord(o.ctx, accountID, func(snap RecordSnapshot, err error) {
		o.onProfileUpdate(gen, snap, err)
	})
	if err != nil {
		if finish := o.handleFeedErrorLocked(o.session, err); finish != nil {
			return finish
		}
	} else {
		ws.profile = cancelProfile
	}
	if o.session == nil || o.session.terminating {
		return nil
	}

	cancelDeletion, err := o.store.WatchDeletedFlag(o.ctx, accountID, func(deleted bool, err error) {
		o.onDeletedFlag(gen, deleted, err)
	})
	if err != nil {
		if finish := o.handleFeedErrorLocked(o.session, err); finish != nil {
			return finish
		}
	} else {
		ws.deletion = cancelDeletion
	}
	if o.session == nil || o.session.terminating {
		return nil
	}

	keepAlive := &keepAliveRevalidator{
		interval:   o.cfg.KeepAliveInterval,
		revalidate: func(ctx context.Context) error { return o.provider.ForceRevalidate(ctx, p) },
		onRevoked: func(code RevocationCode, err error) {
			o.onRevoked(gen, code, err)
		},
		onTransient: func(err error) {
			o.logger.Warn("keep-alive revalidation failed account=%s err=%v", accountID, err)
			o.errors.Report(err)
		},
	}
	ws.keepAlive = keepAlive.start(o.ctx)
	return nil
}

// sessionFor resolves the session a callback was scheduled against. Stale
// generations (replaced or terminated sessions) resolve to nil and the
// callback becomes inert.
func (o *SessionOrchestrator) sessionFor(gen uint64) *Session {
	if o.session == nil || o.session.Generation != gen || o.generation != gen {
		return nil
	}
	return o.session
}

func (o *SessionOrchestrator) onProfileUpdate(gen uint64, snap RecordSnapshot, err error) {
	// Registered before the unlock defer so termination side effects run
	// after the lock is released.
	var finish func()
	defer func() {
		if finish != nil {
			finish()
		}
	}()

	o.mu.Lock()
	defer o.mu.Unlock()

	sess := o.sessionFor(gen)
	if sess == nil {
		return
	}

	if err != nil {
		finish = o.handleFeedErrorLocked(sess, err)
		return
	}

	if snap.Exists {
		if !sess.sawProfileRecordOnce {
			sess.sawProfileRecordOnce = true
			o.logger.Debug("profile record confirmed account=%s", sess.AccountID)
		}

		// An explicit moderation action is authoritative; propagation lag
		// does not apply and no grace window is consulted.
		if snap.Moderated() {
			finish = o.terminateLocked(sess, ReasonSuspended)
			return
		}
		if snap.SoftDeleted() {
			finish = o.terminateLocked(sess, ReasonDeleted)
			return
		}
		return
	}

	// The replica says the record is gone. That is a suspect signal: never
	// terminate on it directly, and never probe inside the grace window.
	if !sess.absenceActionable(o.now()) {
		o.logger.Debug("missing-record report inside grace window account=%s fresh_until=%s",
			sess.AccountID, sess.FreshUntil.Format(time.RFC3339))
		return
	}
	o.launchProbeLocked(sess)
}

func (o *SessionOrchestrator) onDeletedFlag(gen uint64, deleted bool, err error) {
	var finish func()
	defer func() {
		if finish != nil {
			finish()
		}
	}()

	o.mu.Lock()
	defer o.mu.Unlock()

	sess := o.sessionFor(gen)
	if sess == nil {
		return
	}

	if err != nil {
		finish = o.handleFeedErrorLocked(sess, err)
		return
	}

	// Fire-once latch: the feed can be noisy, only the first actionable
	// deleted=true signal counts for this session.
	if !deleted || sess.deletionLatched {
		return
	}
	if !sess.absenceActionable(o.now()) {
		o.logger.Debug("deleted flag inside grace window account=%s", sess.AccountID)
		return
	}

	sess.deletionLatched = true
	finish = o.terminateLocked(sess, ReasonDeleted)
}

func (o *SessionOrchestrator) onRevoked(gen uint64, code RevocationCode, err error) {
	var finish func()
	defer func() {
		if finish != nil {
			finish()
		}
	}()

	o.mu.Lock()
	defer o.mu.Unlock()

	sess := o.sessionFor(gen)
	if sess == nil {
		return
	}

	o.logger.Info("provider revoked credentials account=%s code=%s err=%v", sess.AccountID, code, err)
	finish = o.terminateLocked(sess, ReasonAuthInvalid)
}

func (o *SessionOrchestrator) onMissingConfirmed(gen uint64) {
	var finish func()
	defer func() {
		if finish != nil {
			finish()
		}
	}()

	o.mu.Lock()
	defer o.mu.Unlock()

	sess := o.sessionFor(gen)
	if sess == nil {
		return
	}

	finish = o.terminateLocked(sess, ReasonDocMissingConfirmed)
}

// handleFeedErrorLocked classifies a feed error and, for authoritative ones,
// claims the termination. The returned side-effect closure must run after the
// lock is released; nil means the session survives.
func (o *SessionOrchestrator) handleFeedErrorLocked(sess *Session, err error) func() {
	if sess == nil || err == nil {
		return nil
	}

	// Access revoked at the authorization layer is authoritative; anything
	// else is transient infra noise and must preserve the session.
	if IsPermissionDenied(err) {
		return o.terminateLocked(sess, ReasonForbidden)
	}

	o.logger.Warn("profile feed error account=%s err=%v", sess.AccountID, err)
	o.errors.Report(err)
	return nil
}

func (o *SessionOrchestrator) launchProbeLocked(sess *Session) {
	gen := sess.Generation
	accountID := sess.AccountID
	ctx := o.ctx

	if o.watchers != nil {
		o.watchers.probe = func() { o.prober.Cancel(accountID) }
	}

	go func() {
		if o.prober.ConfirmMissing(ctx, accountID) {
			o.onMissingConfirmed(gen)
		}
	}()
}

// terminateLocked claims the termination under the lock and returns the
// side-effect phase to run once the lock is released, or nil when another
// signal already claimed it.
func (o *SessionOrchestrator) terminateLocked(sess *Session, reason TerminationReason) func() {
	teardown := func() {
		if o.watchers != nil {
			o.watchers.cancelAll()
			o.watchers = nil
		}
		o.prober.Cancel(sess.AccountID)
		// Invalidate stale completions racing the teardown.
		o.generation++
	}
	return o.terminator.terminate(o.ctx, sess, reason, teardown)
}

func (o *SessionOrchestrator) recordActivityLocked(event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = o.now()
	}
	sink := normalizeActivitySink(o.activity)
	if err := sink.Record(o.ctx, event); err != nil {
		o.logger.Warn("activity sink error: %v", err)
	}
}
