package sessionguard

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
)

// DefaultProbeDelay debounces the strongly-consistent existence check against
// transient read-path staleness.
const DefaultProbeDelay = 1200 * time.Millisecond

// DefaultKeepAliveInterval is how often the provider re-validates the
// principal while a session is active.
const DefaultKeepAliveInterval = 30 * time.Second

// Config holds orchestrator tuning. Zero values are replaced with defaults
// before validation.
type Config struct {
	// PropagationWindow and FirstReadWindow parameterize the grace policy.
	PropagationWindow time.Duration
	FirstReadWindow   time.Duration

	// KeepAliveInterval is the revalidation cadence.
	KeepAliveInterval time.Duration

	// ProbeDelay is the debounce before the strongly-consistent absence check.
	ProbeDelay time.Duration

	// EntryPathPrefixes identify the unauthenticated entry flow; termination
	// skips the redirect when the current location already matches one,
	// avoiding redirect loops.
	EntryPathPrefixes []string

	// RedirectHint is attached to the entry redirect alongside the reason so
	// the entry flow can trigger an automatic account re-check.
	RedirectHint string
}

// DefaultConfig returns the tuning used when no overrides are provided.
func DefaultConfig() Config {
	return Config{
		PropagationWindow: DefaultPropagationWindow,
		FirstReadWindow:   DefaultFirstReadWindow,
		KeepAliveInterval: DefaultKeepAliveInterval,
		ProbeDelay:        DefaultProbeDelay,
		EntryPathPrefixes: []string{"/login", "/signup"},
		RedirectHint:      "recheck-account",
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.PropagationWindow <= 0 {
		c.PropagationWindow = def.PropagationWindow
	}
	if c.FirstReadWindow <= 0 {
		c.FirstReadWindow = def.FirstReadWindow
	}
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = def.KeepAliveInterval
	}
	if c.ProbeDelay <= 0 {
		c.ProbeDelay = def.ProbeDelay
	}
	if len(c.EntryPathPrefixes) == 0 {
		c.EntryPathPrefixes = def.EntryPathPrefixes
	}
	if c.RedirectHint == "" {
		c.RedirectHint = def.RedirectHint
	}
	return c
}

// Validate checks the configuration after defaults are applied.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.PropagationWindow, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.FirstReadWindow, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.KeepAliveInterval, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.ProbeDelay, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.EntryPathPrefixes, validation.Required),
	)
}

func (c Config) gracePolicy() GracePolicy {
	return GracePolicy{
		PropagationWindow: c.PropagationWindow,
		FirstReadWindow:   c.FirstReadWindow,
	}
}

func (c Config) onEntryRoute(location string) bool {
	for _, prefix := range c.EntryPathPrefixes {
		if prefix != "" && strings.HasPrefix(location, prefix) {
			return true
		}
	}
	return false
}
