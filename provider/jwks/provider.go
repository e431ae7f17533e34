// Package jwks implements sessionguard.IdentityProvider backed by JWT
// validation against a JWK Set, mirroring how provider-side revocation is
// detected when the identity layer only speaks tokens.
package jwks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"

	sessionguard "github.com/goliatone/go-sessionguard"
)

// AccountStatusChecker consults the provider's management surface for
// account-level revocation (disabled, removed) that token validation alone
// cannot see. Implementations return a *sessionguard.RevocationError for
// authoritative outcomes; any other error is treated as transient.
type AccountStatusChecker interface {
	Check(ctx context.Context, accountID string) error
}

// Config configures the provider.
type Config struct {
	// JWKSURL is the provider's JWK Set endpoint.
	JWKSURL string

	// Issuer and Audience, when set, are enforced during validation.
	Issuer   string
	Audience string

	// KeyFunc overrides JWKS resolution, useful for tests or static keys.
	KeyFunc jwt.Keyfunc

	// StatusChecker is optional; see AccountStatusChecker.
	StatusChecker AccountStatusChecker

	// RefreshInterval for the background JWKS refresh. Defaults to one hour.
	RefreshInterval time.Duration
}

// Provider holds the current principal and re-validates its token on demand.
type Provider struct {
	cfg     Config
	keyFunc jwt.Keyfunc
	jwks    *keyfunc.JWKS
	status  AccountStatusChecker
	logger  sessionguard.Logger

	mu      sync.Mutex
	current *sessionguard.Principal
	subs    map[uint64]*subscriber
	nextSub uint64
}

type subscriber struct {
	fn     func(*sessionguard.Principal)
	closed atomic.Bool
}

// Option customizes provider construction.
type Option func(*Provider)

// WithLogger overrides the default logger.
func WithLogger(logger sessionguard.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New builds a Provider. When cfg.KeyFunc is unset the JWK Set is fetched
// from cfg.JWKSURL and refreshed in the background.
func New(cfg Config, opts ...Option) (*Provider, error) {
	p := &Provider{
		cfg:    cfg,
		status: cfg.StatusChecker,
		logger: noopLogger{},
		subs:   map[uint64]*subscriber{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	if cfg.KeyFunc != nil {
		p.keyFunc = cfg.KeyFunc
		return p, nil
	}

	if strings.TrimSpace(cfg.JWKSURL) == "" {
		return nil, fmt.Errorf("jwks: either JWKSURL or KeyFunc is required")
	}

	refresh := cfg.RefreshInterval
	if refresh <= 0 {
		refresh = time.Hour
	}

	set, err := keyfunc.Get(cfg.JWKSURL, keyfunc.Options{
		RefreshInterval:   refresh,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			p.logger.Warn("jwks background refresh failed: %v", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("jwks: failed to fetch JWK Set: %w", err)
	}

	p.jwks = set
	p.keyFunc = set.Keyfunc
	return p, nil
}

// SetPrincipal records a sign-in (or, with nil, a sign-out) and pushes the
// event to every principal-stream subscriber.
func (p *Provider) SetPrincipal(principal *sessionguard.Principal) {
	p.mu.Lock()
	p.current = principal
	subs := make([]*subscriber, 0, len(p.subs))
	for _, s := range p.subs {
		subs = append(subs, s)
	}
	p.mu.Unlock()

	for _, s := range subs {
		if !s.closed.Load() {
			s.fn(principal)
		}
	}
}

// Current returns the principal most recently set, or nil.
func (p *Provider) Current() *sessionguard.Principal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// PrincipalStream implements sessionguard.IdentityProvider. The current
// principal is delivered immediately, then every SetPrincipal/SignOut.
func (p *Provider) PrincipalStream(ctx context.Context, fn func(principal *sessionguard.Principal)) (sessionguard.CancelFunc, error) {
	if fn == nil {
		return nil, fmt.Errorf("jwks: stream callback is required")
	}

	sub := &subscriber{fn: fn}

	p.mu.Lock()
	p.nextSub++
	id := p.nextSub
	p.subs[id] = sub
	current := p.current
	p.mu.Unlock()

	fn(current)

	return func() {
		sub.closed.Store(true)
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}, nil
}

// ForceRevalidate implements sessionguard.IdentityProvider. Token validation
// failures are classified as revocation; key-resolution failures are infra
// and stay transient so a JWKS outage never evicts a legitimate user.
func (p *Provider) ForceRevalidate(ctx context.Context, principal *sessionguard.Principal) error {
	if principal == nil || principal.Token == "" {
		return sessionguard.NewRevocationError(sessionguard.RevocationInvalidToken, errors.New("no token to validate"))
	}

	opts := []jwt.ParserOption{}
	if p.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.cfg.Issuer))
	}
	if p.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(p.cfg.Audience))
	}

	if _, err := jwt.Parse(principal.Token, p.keyFunc, opts...); err != nil {
		if code, ok := classify(err); ok {
			return sessionguard.NewRevocationError(code, err)
		}
		return err
	}

	if p.status != nil {
		if err := p.status.Check(ctx, principal.AccountID); err != nil {
			return err
		}
	}

	return nil
}

// SignOut implements sessionguard.IdentityProvider.
func (p *Provider) SignOut(ctx context.Context) error {
	p.SetPrincipal(nil)
	return nil
}

func classify(err error) (sessionguard.RevocationCode, bool) {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return sessionguard.RevocationTokenExpired, true
	case errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenNotValidYet),
		errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenInvalidAudience),
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return sessionguard.RevocationInvalidToken, true
	}
	// jwt.ErrTokenUnverifiable covers keyfunc resolution problems, which are
	// infra failures, not revocation.
	return "", false
}

// Close releases the background JWKS refresh, if any.
func (p *Provider) Close() {
	if p.jwks != nil {
		p.jwks.EndBackground()
	}
}

var _ sessionguard.IdentityProvider = (*Provider)(nil)

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
