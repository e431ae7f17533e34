// Package routernav implements sessionguard.Navigator over go-router.
// Termination happens outside any request, so the redirect is recorded as
// pending and applied by the middleware on the next routed request.
package routernav

import (
	"net/http"
	"net/url"
	"strings"
	"sync"

	router "github.com/goliatone/go-router"

	sessionguard "github.com/goliatone/go-sessionguard"
)

const (
	// ReasonParam carries the termination reason on the entry redirect.
	ReasonParam = "reason"
	// HintParam carries the auto-check hint on the entry redirect.
	HintParam = "hint"
)

// Redirect is a pending entry-flow redirect.
type Redirect struct {
	Reason sessionguard.TerminationReason
	Hint   string
}

// Navigator tracks the current routed location and the pending termination
// redirect.
type Navigator struct {
	entryPath string
	logger    sessionguard.Logger

	mu      sync.Mutex
	current string
	pending *Redirect
}

// Option customizes navigator construction.
type Option func(*Navigator)

// WithLogger overrides the default logger.
func WithLogger(logger sessionguard.Logger) Option {
	return func(n *Navigator) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// New builds a Navigator whose entry flow lives at entryPath.
func New(entryPath string, opts ...Option) *Navigator {
	if entryPath == "" {
		entryPath = "/login"
	}
	n := &Navigator{
		entryPath: entryPath,
		logger:    noopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	return n
}

// CurrentLocation implements sessionguard.Navigator.
func (n *Navigator) CurrentLocation() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

// RedirectToEntry implements sessionguard.Navigator. The redirect is applied
// on the next request passing through Middleware.
func (n *Navigator) RedirectToEntry(reason sessionguard.TerminationReason, hint string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pending = &Redirect{Reason: reason, Hint: hint}
	n.logger.Info("entry redirect queued reason=%s", reason)
	return nil
}

// Pending returns the queued redirect, if any, without consuming it.
func (n *Navigator) Pending() (Redirect, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.pending == nil {
		return Redirect{}, false
	}
	return *n.pending, true
}

// EntryURL builds the entry-flow location for a redirect.
func (n *Navigator) EntryURL(r Redirect) string {
	q := url.Values{}
	q.Set(ReasonParam, string(r.Reason))
	if r.Hint != "" {
		q.Set(HintParam, r.Hint)
	}
	return n.entryPath + "?" + q.Encode()
}

// Middleware records the current location and applies a pending redirect.
// Requests already inside the entry flow are let through and the pending
// redirect is dropped, avoiding redirect loops.
func (n *Navigator) Middleware() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			path := c.Path()

			n.mu.Lock()
			n.current = path
			pending := n.pending
			if pending != nil {
				n.pending = nil
			}
			n.mu.Unlock()

			if pending == nil || strings.HasPrefix(path, n.entryPath) {
				return next(c)
			}

			statusCode := http.StatusSeeOther
			if c.Method() == string(router.GET) {
				statusCode = http.StatusFound
			}
			return c.Redirect(n.EntryURL(*pending), statusCode)
		}
	}
}

var _ sessionguard.Navigator = (*Navigator)(nil)

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
