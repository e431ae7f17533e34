package sessionguard_test

import (
	"context"
	"sync"
	"time"

	sessionguard "github.com/goliatone/go-sessionguard"
)

// fakeClock is a mutable clock injected via WithClock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeProvider implements sessionguard.IdentityProvider with a manually
// driven principal stream. With signOutEmitsNil set, SignOut delivers a nil
// principal through the stream inline, like a real provider broadcasting the
// sign-out to its subscribers.
type fakeProvider struct {
	mu              sync.Mutex
	streamFn        func(p *sessionguard.Principal)
	streamErr       error
	revalidateErr   error
	signOutErr      error
	signOuts        int
	signOutEmitsNil bool
}

func (f *fakeProvider) PrincipalStream(ctx context.Context, fn func(p *sessionguard.Principal)) (sessionguard.CancelFunc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	f.streamFn = fn
	return func() {}, nil
}

func (f *fakeProvider) Emit(p *sessionguard.Principal) {
	f.mu.Lock()
	fn := f.streamFn
	f.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

func (f *fakeProvider) ForceRevalidate(ctx context.Context, p *sessionguard.Principal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revalidateErr
}

func (f *fakeProvider) SignOut(ctx context.Context) error {
	f.mu.Lock()
	f.signOuts++
	err := f.signOutErr
	fn := f.streamFn
	emit := f.signOutEmitsNil
	f.mu.Unlock()
	if emit && fn != nil {
		fn(nil)
	}
	return err
}

func (f *fakeProvider) SignOutCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signOuts
}

// fakeStore implements sessionguard.ProfileStore. Feed callbacks are kept
// after cancellation so tests can simulate late deliveries from cancelled
// subscriptions.
type fakeStore struct {
	mu          sync.Mutex
	recordFns   map[string]func(snap sessionguard.RecordSnapshot, err error)
	deletedFns  map[string]func(deleted bool, err error)
	exists      bool
	existsErr   error
	existsCalls int
	watchErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		recordFns:  map[string]func(sessionguard.RecordSnapshot, error){},
		deletedFns: map[string]func(bool, error){},
	}
}

func (f *fakeStore) WatchRecord(ctx context.Context, accountID string, fn func(snap sessionguard.RecordSnapshot, err error)) (sessionguard.CancelFunc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.watchErr != nil {
		return nil, f.watchErr
	}
	f.recordFns[accountID] = fn
	return func() {}, nil
}

func (f *fakeStore) WatchDeletedFlag(ctx context.Context, accountID string, fn func(deleted bool, err error)) (sessionguard.CancelFunc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.watchErr != nil {
		return nil, f.watchErr
	}
	f.deletedFns[accountID] = fn
	return func() {}, nil
}

func (f *fakeStore) ExistsStronglyConsistent(ctx context.Context, accountID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.existsCalls++
	return f.exists, f.existsErr
}

func (f *fakeStore) ExistsCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.existsCalls
}

func (f *fakeStore) EmitRecord(accountID string, snap sessionguard.RecordSnapshot, err error) {
	f.mu.Lock()
	fn := f.recordFns[accountID]
	f.mu.Unlock()
	if fn != nil {
		fn(snap, err)
	}
}

func (f *fakeStore) EmitDeleted(accountID string, deleted bool, err error) {
	f.mu.Lock()
	fn := f.deletedFns[accountID]
	f.mu.Unlock()
	if fn != nil {
		fn(deleted, err)
	}
}

type redirectCall struct {
	Reason sessionguard.TerminationReason
	Hint   string
}

// fakeNavigator implements sessionguard.Navigator.
type fakeNavigator struct {
	mu        sync.Mutex
	location  string
	redirects []redirectCall
}

func (f *fakeNavigator) CurrentLocation() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.location
}

func (f *fakeNavigator) SetLocation(loc string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.location = loc
}

func (f *fakeNavigator) RedirectToEntry(reason sessionguard.TerminationReason, hint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redirects = append(f.redirects, redirectCall{Reason: reason, Hint: hint})
	return nil
}

func (f *fakeNavigator) Redirects() []redirectCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]redirectCall, len(f.redirects))
	copy(out, f.redirects)
	return out
}

// countingStateSink implements sessionguard.SessionStateSink.
type countingStateSink struct {
	mu     sync.Mutex
	clears int
	err    error
}

func (f *countingStateSink) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	return f.err
}

func (f *countingStateSink) Clears() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clears
}

// collectingErrorSink implements sessionguard.ErrorSink.
type collectingErrorSink struct {
	mu   sync.Mutex
	errs []error
}

func (f *collectingErrorSink) Report(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, err)
}

func (f *collectingErrorSink) Errors() []error {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]error, len(f.errs))
	copy(out, f.errs)
	return out
}

// collectingActivitySink implements sessionguard.ActivitySink.
type collectingActivitySink struct {
	mu     sync.Mutex
	events []sessionguard.ActivityEvent
}

func (f *collectingActivitySink) Record(ctx context.Context, event sessionguard.ActivityEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *collectingActivitySink) Events() []sessionguard.ActivityEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sessionguard.ActivityEvent, len(f.events))
	copy(out, f.events)
	return out
}

type offlineProbe struct{}

func (offlineProbe) Online() bool { return false }

// blockingStateSink parks Clear until released, simulating a slow persisted
// store behind the sink.
type blockingStateSink struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingStateSink() *blockingStateSink {
	return &blockingStateSink{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (s *blockingStateSink) Clear(ctx context.Context) error {
	s.once.Do(func() { close(s.started) })
	<-s.release
	return nil
}
