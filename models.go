package sessionguard

import (
	"fmt"
	"time"

	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

// TerminationReason is the closed set of causes for a forced session
// termination. Immutable once chosen; it travels on the entry redirect and is
// never retried or reinterpreted.
type TerminationReason string

const (
	// ReasonDeleted means the profile record carries a deletion marker.
	ReasonDeleted TerminationReason = "deleted"
	// ReasonSuspended means an explicit moderation flag was observed.
	ReasonSuspended TerminationReason = "suspended"
	// ReasonAuthInvalid means the identity provider revoked the credentials.
	ReasonAuthInvalid TerminationReason = "auth-invalid"
	// ReasonDocMissingConfirmed means a strongly-consistent probe confirmed
	// the profile record is absent.
	ReasonDocMissingConfirmed TerminationReason = "doc-missing-confirmed"
	// ReasonForbidden means access was revoked at the authorization layer.
	ReasonForbidden TerminationReason = "forbidden"
)

// Valid reports whether r belongs to the closed reason set.
func (r TerminationReason) Valid() bool {
	switch r {
	case ReasonDeleted, ReasonSuspended, ReasonAuthInvalid,
		ReasonDocMissingConfirmed, ReasonForbidden:
		return true
	}
	return false
}

// Session tracks validity progress for one authenticated principal. It is
// exclusively owned by the orchestrator; all mutation happens under its lock.
type Session struct {
	ID         uuid.UUID
	AccountID  string
	Generation uint64
	CreatedAt  time.Time
	FreshUntil time.Time

	sawProfileRecordOnce bool
	terminating          bool
	deletionLatched      bool
}

// SessionSnapshot is a read-only copy of the current session state for
// diagnostics.
type SessionSnapshot struct {
	ID                   uuid.UUID
	AccountID            string
	Generation           uint64
	CreatedAt            time.Time
	FreshUntil           time.Time
	SawProfileRecordOnce bool
	Terminating          bool
}

func (s *Session) snapshot() SessionSnapshot {
	return SessionSnapshot{
		ID:                   s.ID,
		AccountID:            s.AccountID,
		Generation:           s.Generation,
		CreatedAt:            s.CreatedAt,
		FreshUntil:           s.FreshUntil,
		SawProfileRecordOnce: s.sawProfileRecordOnce,
		Terminating:          s.terminating,
	}
}

// absenceActionable is the grace-window guard: absence signals are trusted
// only once the record was seen, or after freshUntil elapsed.
func (s *Session) absenceActionable(now time.Time) bool {
	return s.sawProfileRecordOnce || now.After(s.FreshUntil)
}

// newSessionID derives a stable session id from the account and generation,
// falling back to a random id if derivation fails.
func newSessionID(accountID string, generation uint64) uuid.UUID {
	if id, err := hashid.NewUUID(fmt.Sprintf("%s:%d", accountID, generation)); err == nil {
		return id
	}
	return uuid.New()
}

// watcherSet owns the live subscriptions and timers of one session: profile
// feed, deletion feed, keep-alive timer, and the in-flight probe cancel. At
// most one watcherSet is active per account, and the previous one is fully
// cancelled before a new one is created.
type watcherSet struct {
	profile   CancelFunc
	deletion  CancelFunc
	keepAlive CancelFunc
	probe     CancelFunc
}

// cancelAll stops every member synchronously. Safe to call more than once.
func (w *watcherSet) cancelAll() {
	if w == nil {
		return
	}
	for _, cancel := range []CancelFunc{w.profile, w.deletion, w.keepAlive, w.probe} {
		if cancel != nil {
			cancel()
		}
	}
	w.profile, w.deletion, w.keepAlive, w.probe = nil, nil, nil, nil
}
