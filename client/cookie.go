package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"

	"github.com/mfekit/bff/identity"
)

// csrfHeaderName mirrors the header the broker expects on state-changing
// requests.
const csrfHeaderName = "X-CSRF-Token"

// CookieStrategy authenticates against a session broker. The session handle
// lives in an HttpOnly cookie managed by the jar; the strategy itself only
// ever holds the CSRF token.
type CookieStrategy struct {
	base   *url.URL
	client *http.Client

	mu   sync.Mutex
	csrf string
}

// NewCookieStrategy returns a strategy talking to the broker mounted at
// baseURL (for example "https://shell.example.com/api/auth"). When httpClient
// is nil a client with a fresh cookie jar is created; a supplied client must
// carry a jar or the session cookie is lost between calls.
func NewCookieStrategy(baseURL string, httpClient *http.Client) (*CookieStrategy, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing broker URL: %w", err)
	}
	if httpClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("creating cookie jar: %w", err)
		}
		httpClient = &http.Client{Jar: jar}
	}
	return &CookieStrategy{base: base, client: httpClient}, nil
}

// Resolve introspects the broker session via GET /me. A 401 means anonymous;
// a transport failure means the answer is unknown and is returned as an
// error. On success the CSRF token is re-fetched so state-changing calls
// work after a page reload.
func (s *CookieStrategy) Resolve(ctx context.Context) (identity.Profile, bool, error) {
	resp, err := s.do(ctx, http.MethodGet, "/me", nil, false)
	if err != nil {
		return identity.Profile{}, false, fmt.Errorf("reaching broker: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return identity.Profile{}, false, nil
	default:
		return identity.Profile{}, false, fmt.Errorf("broker returned %s", resp.Status)
	}

	var body struct {
		User identity.Profile `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return identity.Profile{}, false, fmt.Errorf("decoding session: %w", err)
	}

	if err := s.refreshCSRF(ctx); err != nil {
		return identity.Profile{}, false, err
	}
	return body.User, true, nil
}

// Login posts the upstream credential to the broker and adopts the returned
// profile and CSRF token. The session handle arrives in a Set-Cookie the jar
// absorbs.
func (s *CookieStrategy) Login(ctx context.Context, credential string) (identity.Profile, error) {
	payload, err := json.Marshal(map[string]string{"credential": credential})
	if err != nil {
		return identity.Profile{}, err
	}
	resp, err := s.do(ctx, http.MethodPost, "/login", payload, false)
	if err != nil {
		return identity.Profile{}, fmt.Errorf("reaching broker: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return identity.Profile{}, fmt.Errorf("login rejected: %s", resp.Status)
	}

	var body struct {
		CSRFToken string           `json:"csrfToken"`
		User      identity.Profile `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return identity.Profile{}, fmt.Errorf("decoding login response: %w", err)
	}

	s.mu.Lock()
	s.csrf = body.CSRFToken
	s.mu.Unlock()
	return body.User, nil
}

// Logout tells the broker to destroy the session. The CSRF token is cleared
// locally whatever the broker said; logout must leave the module anonymous
// even when the broker is down.
func (s *CookieStrategy) Logout(ctx context.Context) error {
	resp, err := s.do(ctx, http.MethodPost, "/logout", nil, true)

	s.mu.Lock()
	s.csrf = ""
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("reaching broker: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("logout returned %s", resp.Status)
	}
	return nil
}

// Refresh extends the broker session's lifetime.
func (s *CookieStrategy) Refresh(ctx context.Context) error {
	resp, err := s.do(ctx, http.MethodPost, "/refresh", nil, true)
	if err != nil {
		return fmt.Errorf("reaching broker: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("refresh returned %s", resp.Status)
	}
	return nil
}

// Headers returns the CSRF header for protected requests. The session
// itself rides in the cookie jar, so nothing else is attached.
func (s *CookieStrategy) Headers() http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := http.Header{}
	if s.csrf != "" {
		h.Set(csrfHeaderName, s.csrf)
	}
	return h
}

func (s *CookieStrategy) refreshCSRF(ctx context.Context) error {
	resp, err := s.do(ctx, http.MethodGet, "/csrf", nil, false)
	if err != nil {
		return fmt.Errorf("fetching CSRF token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("CSRF fetch returned %s", resp.Status)
	}
	var body struct {
		CSRFToken string `json:"csrfToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decoding CSRF token: %w", err)
	}
	s.mu.Lock()
	s.csrf = body.CSRFToken
	s.mu.Unlock()
	return nil
}

func (s *CookieStrategy) do(ctx context.Context, method, path string, body []byte, withCSRF bool) (*http.Response, error) {
	u := s.base.JoinPath(path)

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if withCSRF {
		s.mu.Lock()
		if s.csrf != "" {
			req.Header.Set(csrfHeaderName, s.csrf)
		}
		s.mu.Unlock()
	}
	return s.client.Do(req)
}
