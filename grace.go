package sessionguard

import "time"

const (
	// DefaultPropagationWindow covers replica lag between account creation
	// and the profile record becoming visible on the read path.
	DefaultPropagationWindow = 30 * time.Second

	// DefaultFirstReadWindow covers a returning user's very first read after
	// login racing a write-then-read path.
	DefaultFirstReadWindow = 6 * time.Second
)

// GracePolicy computes the fresh-until boundary before which absence-of-record
// signals are not trusted. Pure; no I/O.
type GracePolicy struct {
	PropagationWindow time.Duration
	FirstReadWindow   time.Duration
}

// FreshUntil returns max(createdAt+PropagationWindow, now+FirstReadWindow).
func (p GracePolicy) FreshUntil(createdAt, now time.Time) time.Time {
	fromCreation := createdAt.Add(p.PropagationWindow)
	fromNow := now.Add(p.FirstReadWindow)
	if fromCreation.After(fromNow) {
		return fromCreation
	}
	return fromNow
}

// ComputeFreshUntil applies the default windows: max(createdAt+30s, now+6s).
func ComputeFreshUntil(createdAt, now time.Time) time.Time {
	return GracePolicy{
		PropagationWindow: DefaultPropagationWindow,
		FirstReadWindow:   DefaultFirstReadWindow,
	}.FreshUntil(createdAt, now)
}
