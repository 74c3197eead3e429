package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfekit/bff/api"
	"github.com/mfekit/bff/bus"
	"github.com/mfekit/bff/client"
	"github.com/mfekit/bff/identity"
	"github.com/mfekit/bff/session"
)

const (
	testAudience = "bff-local"
	testIssuer   = "https://idp.example.com"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newBroker(t *testing.T) *httptest.Server {
	t.Helper()
	verifier := identity.NewHMACVerifier(testSecret, testAudience, testIssuer, "local")
	a := api.New(verifier, session.NewMemoryStore())
	r := chi.NewRouter()
	r.Mount("/api/auth", a.Router())
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func signCredential(t *testing.T, subject, email string, ttl time.Duration) string {
	t.Helper()
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":   testIssuer,
		"sub":   subject,
		"aud":   testAudience,
		"email": email,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	})
	raw, err := token.SignedString(testSecret)
	require.NoError(t, err)
	return raw
}

func TestCookieStrategyLifecycle(t *testing.T) {
	srv := newBroker(t)
	strat, err := client.NewCookieStrategy(srv.URL+"/api/auth", nil)
	require.NoError(t, err)
	ctx := t.Context()

	// Before login: definitively anonymous, no error.
	_, ok, err := strat.Resolve(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	profile, err := strat.Login(ctx, signCredential(t, "u1", "alice@x.com", time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "u1", profile.Subject)

	// The session survives "a page reload": a fresh Resolve on the same jar.
	got, ok, err := strat.Resolve(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice@x.com", got.Email)

	// The strategy exposes a CSRF header but never an Authorization header.
	headers := strat.Headers()
	assert.NotEmpty(t, headers.Get("X-CSRF-Token"))
	assert.Empty(t, headers.Get("Authorization"))

	require.NoError(t, strat.Refresh(ctx))
	require.NoError(t, strat.Logout(ctx))

	_, ok, err = strat.Resolve(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, strat.Headers().Get("X-CSRF-Token"))
}

func TestCookieStrategyInvalidLogin(t *testing.T) {
	srv := newBroker(t)
	strat, err := client.NewCookieStrategy(srv.URL+"/api/auth", nil)
	require.NoError(t, err)

	_, err = strat.Login(t.Context(), "garbage")
	assert.Error(t, err)
}

func TestCookieStrategyBrokerUnreachable(t *testing.T) {
	srv := newBroker(t)
	strat, err := client.NewCookieStrategy(srv.URL+"/api/auth", nil)
	require.NoError(t, err)
	srv.Close()

	_, ok, err := strat.Resolve(t.Context())
	assert.Error(t, err, "unknown, not anonymous")
	assert.False(t, ok)
}

func TestBridgeResolveTransitions(t *testing.T) {
	srv := newBroker(t)
	strat, err := client.NewCookieStrategy(srv.URL+"/api/auth", nil)
	require.NoError(t, err)

	br := client.NewBridge(strat)
	assert.Equal(t, client.ModeUnresolved, br.Snapshot().Mode)

	require.NoError(t, br.Resolve(t.Context()))
	assert.Equal(t, client.ModeAnonymous, br.Snapshot().Mode)

	_, err = br.Login(t.Context(), signCredential(t, "u1", "alice@x.com", time.Hour))
	require.NoError(t, err)

	snap := br.Snapshot()
	assert.Equal(t, client.ModeAuthenticated, snap.Mode)
	assert.Equal(t, "u1", snap.Profile.Subject)
	assert.False(t, snap.Loading)

	require.NoError(t, br.Logout(t.Context()))
	snap = br.Snapshot()
	assert.Equal(t, client.ModeAnonymous, snap.Mode)
	assert.Empty(t, snap.Profile.Subject)
}

// fakeStrategy lets bridge tests control the strategy outcomes directly.
type fakeStrategy struct {
	profile    identity.Profile
	resolveOK  bool
	resolveErr error
	loginErr   error
	logoutErr  error
}

func (f *fakeStrategy) Resolve(context.Context) (identity.Profile, bool, error) {
	return f.profile, f.resolveOK, f.resolveErr
}

func (f *fakeStrategy) Login(context.Context, string) (identity.Profile, error) {
	return f.profile, f.loginErr
}

func (f *fakeStrategy) Logout(context.Context) error { return f.logoutErr }

func (f *fakeStrategy) Headers() http.Header { return http.Header{} }

func TestBridgeResolveErrorSettlesAnonymous(t *testing.T) {
	br := client.NewBridge(&fakeStrategy{resolveErr: errors.New("broker down")})

	err := br.Resolve(t.Context())
	assert.Error(t, err)
	assert.Equal(t, client.ModeAnonymous, br.Snapshot().Mode)
}

func TestBridgeLogoutAlwaysClearsState(t *testing.T) {
	fake := &fakeStrategy{profile: identity.Profile{Subject: "u1"}, loginErr: nil, logoutErr: errors.New("broker down")}
	br := client.NewBridge(fake)

	_, err := br.Login(t.Context(), "cred")
	require.NoError(t, err)

	err = br.Logout(t.Context())
	assert.Error(t, err)
	assert.Equal(t, client.ModeAnonymous, br.Snapshot().Mode)
}

func TestBridgesShareTransitionsOverBus(t *testing.T) {
	shared := bus.New()
	shell := client.NewBridge(&fakeStrategy{profile: identity.Profile{Subject: "u1", Email: "alice@x.com"}}, client.WithBus(shared))
	widget := client.NewBridge(&fakeStrategy{}, client.WithBus(shared))

	_, err := shell.Login(t.Context(), "cred")
	require.NoError(t, err)

	snap := widget.Snapshot()
	assert.Equal(t, client.ModeAuthenticated, snap.Mode, "peer bridge mirrors the login")
	assert.Equal(t, "u1", snap.Profile.Subject)

	require.NoError(t, shell.Logout(t.Context()))
	assert.Equal(t, client.ModeAnonymous, widget.Snapshot().Mode, "peer bridge mirrors the logout")
}

func TestBearerStrategy(t *testing.T) {
	strat := client.NewBearerStrategy(nil)
	ctx := t.Context()

	_, ok, err := strat.Resolve(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	cred := signCredential(t, "u1", "alice@x.com", time.Hour)
	profile, err := strat.Login(ctx, cred)
	require.NoError(t, err)
	assert.Equal(t, "u1", profile.Subject)
	assert.Equal(t, []string{"user"}, profile.Roles)

	got, ok, err := strat.Resolve(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice@x.com", got.Email)

	assert.Equal(t, "Bearer "+cred, strat.Headers().Get("Authorization"))
	assert.Empty(t, strat.Headers().Get("X-CSRF-Token"))

	require.NoError(t, strat.Logout(ctx))
	_, ok, _ = strat.Resolve(ctx)
	assert.False(t, ok)
	assert.Empty(t, strat.Headers().Get("Authorization"))
}

func TestBearerStrategyRejectsGarbage(t *testing.T) {
	strat := client.NewBearerStrategy(nil)

	_, err := strat.Login(t.Context(), "not-a-jwt")
	assert.ErrorIs(t, err, client.ErrInvalidToken)
}

func TestBearerStrategyExpiredTokenIsAnonymous(t *testing.T) {
	stash := &client.MemoryStash{}
	stash.Set(signCredential(t, "u1", "alice@x.com", -time.Minute))

	strat := client.NewBearerStrategy(stash)
	_, ok, err := strat.Resolve(t.Context())
	require.NoError(t, err)
	assert.False(t, ok)

	_, held := stash.Get()
	assert.False(t, held, "expired token is dropped from the stash")
}

// loadingRecorder captures the bridge's Loading flag while strategy calls
// are in flight.
type loadingRecorder struct {
	br            *client.Bridge
	duringResolve bool
	duringLogin   bool
}

func (s *loadingRecorder) Resolve(context.Context) (identity.Profile, bool, error) {
	s.duringResolve = s.br.Snapshot().Loading
	return identity.Profile{}, false, nil
}

func (s *loadingRecorder) Login(context.Context, string) (identity.Profile, error) {
	s.duringLogin = s.br.Snapshot().Loading
	return identity.Profile{Subject: "u1"}, nil
}

func (s *loadingRecorder) Logout(context.Context) error { return nil }

func (s *loadingRecorder) Headers() http.Header { return http.Header{} }

// Loading marks only the initial resolution; an explicit login must not
// flash a loading state in consumers gating on it.
func TestLoadingOnlyDuringInitialResolve(t *testing.T) {
	rec := &loadingRecorder{}
	br := client.NewBridge(rec)
	rec.br = br

	require.NoError(t, br.Resolve(t.Context()))
	assert.True(t, rec.duringResolve, "the initial check reports loading")
	assert.False(t, br.Snapshot().Loading, "loading clears once resolved")

	_, err := br.Login(t.Context(), "cred")
	require.NoError(t, err)
	assert.False(t, rec.duringLogin, "login never reports loading")
	assert.False(t, br.Snapshot().Loading)
}

func TestBridgeDecorate(t *testing.T) {
	strat := client.NewBearerStrategy(nil)
	cred := signCredential(t, "u1", "alice@x.com", time.Hour)
	_, err := strat.Login(t.Context(), cred)
	require.NoError(t, err)

	br := client.NewBridge(strat)
	req := httptest.NewRequest(http.MethodGet, "/widgets", nil)
	br.Decorate(req)
	assert.Equal(t, "Bearer "+cred, req.Header.Get("Authorization"))
}
