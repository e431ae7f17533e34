package sessionguard

import (
	"context"
	"fmt"
	"time"
)

// Logger is the minimal logging surface consumers can satisfy with their own
// logging stack. See NewZerologAdapter for a structured implementation.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// CancelFunc stops a subscription, timer, or in-flight probe. After it
// returns no further callback from the cancelled source may be observed.
type CancelFunc func()

// Principal is the identity provider's representation of the currently
// authenticated account. CreatedAt, when available, anchors the grace window
// so a brand-new account is not evicted while its profile record propagates.
type Principal struct {
	AccountID string
	Email     string
	Token     string
	CreatedAt *time.Time
	Metadata  map[string]any
}

// IdentityProvider is the boundary to the remote identity layer.
type IdentityProvider interface {
	// PrincipalStream subscribes fn to the current-principal feed. fn
	// receives nil when the user is signed out. The returned CancelFunc
	// stops delivery synchronously.
	PrincipalStream(ctx context.Context, fn func(p *Principal)) (CancelFunc, error)

	// ForceRevalidate makes the provider re-check the principal's
	// credentials. Revocation outcomes must be classified as a
	// *RevocationError; anything else is treated as transient.
	ForceRevalidate(ctx context.Context, p *Principal) error

	// SignOut invalidates the provider-side session. Best effort: local
	// teardown proceeds regardless of the outcome.
	SignOut(ctx context.Context) error
}

// RecordSnapshot is one observation of an account's profile record.
// Typed moderation fields are read first; Fields keeps the raw document for
// deployments that use their own flag names.
type RecordSnapshot struct {
	Exists      bool
	Status      string
	IsBanned    bool
	IsSuspended bool
	DeletedAt   *time.Time
	Fields      map[string]any
}

// ProfileStore is the boundary to the replicated document store holding
// profile records.
type ProfileStore interface {
	// WatchRecord subscribes fn to record changes for accountID. Subscription
	// errors are delivered through the callback; delivery stops synchronously
	// once the CancelFunc returns.
	WatchRecord(ctx context.Context, accountID string, fn func(snap RecordSnapshot, err error)) (CancelFunc, error)

	// WatchDeletedFlag subscribes fn to the record's deleted marker. Kept
	// separate from WatchRecord because the two feeds may ride different
	// consistency paths and can disagree transiently.
	WatchDeletedFlag(ctx context.Context, accountID string, fn func(deleted bool, err error)) (CancelFunc, error)

	// ExistsStronglyConsistent reports whether the record exists, bypassing
	// any replica or local cache.
	ExistsStronglyConsistent(ctx context.Context, accountID string) (bool, error)
}

// SessionStateSink clears any locally cached or persisted copy of the
// authenticated user when a session ends.
type SessionStateSink interface {
	Clear(ctx context.Context) error
}

// SessionStateSinkFunc adapts a function to the SessionStateSink interface.
type SessionStateSinkFunc func(ctx context.Context) error

// Clear implements SessionStateSink.
func (f SessionStateSinkFunc) Clear(ctx context.Context) error {
	if f == nil {
		return nil
	}
	return f(ctx)
}

// Navigator is the boundary to the application's navigation layer, used only
// for the termination redirect.
type Navigator interface {
	CurrentLocation() string
	RedirectToEntry(reason TerminationReason, hint string) error
}

// ErrorSink receives transient failures for diagnostics. Implementations
// must never block or panic; termination never waits on the sink.
type ErrorSink interface {
	Report(err error)
}

// ErrorSinkFunc adapts a function to the ErrorSink interface.
type ErrorSinkFunc func(err error)

// Report implements ErrorSink.
func (f ErrorSinkFunc) Report(err error) {
	if f != nil {
		f(err)
	}
}

// ConnectivityProbe reports whether the client currently has connectivity.
// The missing-record prober refuses to confirm absence while offline.
type ConnectivityProbe interface {
	Online() bool
}

// ConnectivityProbeFunc adapts a function to the ConnectivityProbe interface.
type ConnectivityProbeFunc func() bool

// Online implements ConnectivityProbe.
func (f ConnectivityProbeFunc) Online() bool {
	if f == nil {
		return true
	}
	return f()
}

type noopErrorSink struct{}

func (noopErrorSink) Report(error) {}

type noopStateSink struct{}

func (noopStateSink) Clear(context.Context) error { return nil }

type alwaysOnline struct{}

func (alwaysOnline) Online() bool { return true }

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] SESSIONGUARD "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] SESSIONGUARD "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] SESSIONGUARD "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] SESSIONGUARD "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
