package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mfekit/bff/identity"
)

// ErrInvalidToken is returned when a stashed or supplied bearer token cannot
// be decoded at all.
var ErrInvalidToken = errors.New("client: invalid bearer token")

// TokenStash abstracts where a bearer token is kept between page loads.
type TokenStash interface {
	Get() (token string, ok bool)
	Set(token string)
	Clear()
}

// MemoryStash keeps the token in process memory. It is lost on restart,
// which for a bearer setup just means the user signs in again.
type MemoryStash struct {
	mu    sync.Mutex
	token string
}

func (m *MemoryStash) Get() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.token != ""
}

func (m *MemoryStash) Set(token string) {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
}

func (m *MemoryStash) Clear() {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
}

// BearerStrategy attaches the raw identity token to requests directly and
// resolves state by decoding the token locally, without a broker round trip.
// The decode is deliberately unverified: the module has no signing key and
// does not need one, because every protected backend verifies the token
// itself. The decoded profile is for display only.
type BearerStrategy struct {
	stash TokenStash
}

// NewBearerStrategy returns a strategy backed by the given stash. A nil
// stash gets an in-memory one.
func NewBearerStrategy(stash TokenStash) *BearerStrategy {
	if stash == nil {
		stash = &MemoryStash{}
	}
	return &BearerStrategy{stash: stash}
}

// Resolve decodes the stashed token. A missing or expired token means
// anonymous; an undecodable token is cleared and also means anonymous.
func (s *BearerStrategy) Resolve(_ context.Context) (identity.Profile, bool, error) {
	token, ok := s.stash.Get()
	if !ok {
		return identity.Profile{}, false, nil
	}
	profile, err := decodeBearer(token)
	if err != nil {
		s.stash.Clear()
		return identity.Profile{}, false, nil
	}
	return profile, true, nil
}

// Login stashes the credential after checking it decodes.
func (s *BearerStrategy) Login(_ context.Context, credential string) (identity.Profile, error) {
	profile, err := decodeBearer(credential)
	if err != nil {
		return identity.Profile{}, err
	}
	s.stash.Set(credential)
	return profile, nil
}

// Logout drops the token. There is no server-side state to tear down.
func (s *BearerStrategy) Logout(_ context.Context) error {
	s.stash.Clear()
	return nil
}

// Headers returns the Authorization header when a token is held.
func (s *BearerStrategy) Headers() http.Header {
	h := http.Header{}
	if token, ok := s.stash.Get(); ok {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

// decodeBearer extracts display claims from the token without verifying the
// signature, and rejects tokens already past their expiry.
func decodeBearer(raw string) (identity.Profile, error) {
	var claims jwt.MapClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return identity.Profile{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return identity.Profile{}, fmt.Errorf("%w: bad exp claim", ErrInvalidToken)
	}
	if exp != nil && exp.Before(time.Now()) {
		return identity.Profile{}, fmt.Errorf("%w: expired", ErrInvalidToken)
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return identity.Profile{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	profile := identity.Profile{Subject: sub}
	profile.Email, _ = claims["email"].(string)
	profile.Name, _ = claims["name"].(string)
	profile.Picture, _ = claims["picture"].(string)
	if raw, ok := claims["roles"].([]any); ok {
		for _, r := range raw {
			if s, ok := r.(string); ok {
				profile.Roles = append(profile.Roles, s)
			}
		}
	}
	return profile.Normalize(), nil
}
