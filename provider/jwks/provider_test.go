package jwks_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sessionguard "github.com/goliatone/go-sessionguard"
	"github.com/goliatone/go-sessionguard/provider/jwks"
)

var testKey = []byte("unit-test-signing-key")

func staticKeyFunc(t *jwt.Token) (any, error) {
	return testKey, nil
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(testKey)
	require.NoError(t, err)
	return signed
}

func newProvider(t *testing.T, cfg jwks.Config) *jwks.Provider {
	t.Helper()
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = staticKeyFunc
	}
	p, err := jwks.New(cfg)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func TestNewRequiresKeySource(t *testing.T) {
	_, err := jwks.New(jwks.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWKSURL or KeyFunc")
}

func TestPrincipalStreamDeliversCurrentThenUpdates(t *testing.T) {
	p := newProvider(t, jwks.Config{})

	first := &sessionguard.Principal{AccountID: "u1"}
	p.SetPrincipal(first)

	var got []*sessionguard.Principal
	cancel, err := p.PrincipalStream(context.Background(), func(principal *sessionguard.Principal) {
		got = append(got, principal)
	})
	require.NoError(t, err)
	defer cancel()

	require.Len(t, got, 1)
	assert.Equal(t, "u1", got[0].AccountID)

	p.SetPrincipal(&sessionguard.Principal{AccountID: "u2"})
	require.Len(t, got, 2)
	assert.Equal(t, "u2", got[1].AccountID)

	cancel()
	p.SetPrincipal(&sessionguard.Principal{AccountID: "u3"})
	assert.Len(t, got, 2, "cancelled stream receives nothing")
}

func TestSignOutBroadcastsNil(t *testing.T) {
	p := newProvider(t, jwks.Config{})
	p.SetPrincipal(&sessionguard.Principal{AccountID: "u1"})

	var got []*sessionguard.Principal
	cancel, err := p.PrincipalStream(context.Background(), func(principal *sessionguard.Principal) {
		got = append(got, principal)
	})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, p.SignOut(context.Background()))

	require.Len(t, got, 2)
	assert.Nil(t, got[1])
	assert.Nil(t, p.Current())
}

func TestForceRevalidateValidToken(t *testing.T) {
	p := newProvider(t, jwks.Config{Issuer: "https://issuer.test", Audience: "app"})

	token := signToken(t, jwt.MapClaims{
		"iss": "https://issuer.test",
		"aud": "app",
		"sub": "u1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	err := p.ForceRevalidate(context.Background(), &sessionguard.Principal{AccountID: "u1", Token: token})
	assert.NoError(t, err)
}

func TestForceRevalidateClassification(t *testing.T) {
	tests := []struct {
		name   string
		cfg    jwks.Config
		claims jwt.MapClaims
		code   sessionguard.RevocationCode
	}{
		{
			name: "expired token",
			claims: jwt.MapClaims{
				"sub": "u1",
				"exp": time.Now().Add(-time.Hour).Unix(),
			},
			code: sessionguard.RevocationTokenExpired,
		},
		{
			name: "wrong issuer",
			cfg:  jwks.Config{Issuer: "https://issuer.test"},
			claims: jwt.MapClaims{
				"iss": "https://evil.test",
				"sub": "u1",
				"exp": time.Now().Add(time.Hour).Unix(),
			},
			code: sessionguard.RevocationInvalidToken,
		},
		{
			name: "wrong audience",
			cfg:  jwks.Config{Audience: "app"},
			claims: jwt.MapClaims{
				"aud": "other",
				"sub": "u1",
				"exp": time.Now().Add(time.Hour).Unix(),
			},
			code: sessionguard.RevocationInvalidToken,
		},
		{
			name: "not valid yet",
			claims: jwt.MapClaims{
				"sub": "u1",
				"nbf": time.Now().Add(time.Hour).Unix(),
				"exp": time.Now().Add(2 * time.Hour).Unix(),
			},
			code: sessionguard.RevocationInvalidToken,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := newProvider(t, tc.cfg)
			token := signToken(t, tc.claims)

			err := p.ForceRevalidate(context.Background(), &sessionguard.Principal{AccountID: "u1", Token: token})
			code, ok := sessionguard.AsRevocation(err)
			require.True(t, ok, "expected revocation, got %v", err)
			assert.Equal(t, tc.code, code)
		})
	}
}

func TestForceRevalidateMalformedToken(t *testing.T) {
	p := newProvider(t, jwks.Config{})

	err := p.ForceRevalidate(context.Background(), &sessionguard.Principal{AccountID: "u1", Token: "not-a-jwt"})
	code, ok := sessionguard.AsRevocation(err)
	require.True(t, ok)
	assert.Equal(t, sessionguard.RevocationInvalidToken, code)
}

func TestForceRevalidateMissingToken(t *testing.T) {
	p := newProvider(t, jwks.Config{})

	err := p.ForceRevalidate(context.Background(), nil)
	code, ok := sessionguard.AsRevocation(err)
	require.True(t, ok)
	assert.Equal(t, sessionguard.RevocationInvalidToken, code)

	err = p.ForceRevalidate(context.Background(), &sessionguard.Principal{AccountID: "u1"})
	_, ok = sessionguard.AsRevocation(err)
	assert.True(t, ok)
}

func TestForceRevalidateKeyResolutionFailureIsTransient(t *testing.T) {
	infraErr := errors.New("jwks endpoint unreachable")
	p := newProvider(t, jwks.Config{
		KeyFunc: func(token *jwt.Token) (any, error) {
			return nil, infraErr
		},
	})

	token := signToken(t, jwt.MapClaims{
		"sub": "u1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	err := p.ForceRevalidate(context.Background(), &sessionguard.Principal{AccountID: "u1", Token: token})
	require.Error(t, err)
	_, ok := sessionguard.AsRevocation(err)
	assert.False(t, ok, "infra failure must stay transient")
}

type stubStatusChecker struct {
	err error
}

func (s stubStatusChecker) Check(ctx context.Context, accountID string) error {
	return s.err
}

func TestForceRevalidateConsultsStatusChecker(t *testing.T) {
	revoked := sessionguard.NewRevocationError(sessionguard.RevocationUserDisabled, errors.New("disabled by admin"))
	p := newProvider(t, jwks.Config{StatusChecker: stubStatusChecker{err: revoked}})

	token := signToken(t, jwt.MapClaims{
		"sub": "u1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	err := p.ForceRevalidate(context.Background(), &sessionguard.Principal{AccountID: "u1", Token: token})
	code, ok := sessionguard.AsRevocation(err)
	require.True(t, ok)
	assert.Equal(t, sessionguard.RevocationUserDisabled, code)
}
