package api

import (
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultCookieName is the stable session cookie name. Changing it
	// between deployments strands every live session.
	DefaultCookieName = "bff_session"

	// CSRFHeaderName is the fixed header carrying the anti-forgery token on
	// state-changing requests. The token is never accepted from a cookie —
	// an attacker page can make the browser send cookies but cannot set
	// this header cross-origin.
	CSRFHeaderName = "X-CSRF-Token"
)

// CookieConfig controls how the session cookie is issued.
type CookieConfig struct {
	Name string
	Path string // scoped to the broker's mount point
}

func (c CookieConfig) normalize() CookieConfig {
	if c.Name == "" {
		c.Name = DefaultCookieName
	}
	if c.Path == "" {
		c.Path = "/"
	}
	return c
}

// writeSessionCookie issues the handle-bearing cookie. HttpOnly keeps module
// code from reading it; SameSite=Lax keeps cross-site POSTs from carrying it.
func (a *API) writeSessionCookie(w http.ResponseWriter, r *http.Request, handle string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookie.Name,
		Value:    handle,
		Path:     a.cookie.Path,
		HttpOnly: true,
		Secure:   requestIsSecure(r),
		SameSite: http.SameSiteLaxMode,
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
	})
}

// clearSessionCookie removes the cookie so the browser stops presenting a
// dead handle.
func (a *API) clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookie.Name,
		Value:    "",
		Path:     a.cookie.Path,
		HttpOnly: true,
		Secure:   requestIsSecure(r),
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

// requestIsSecure reports whether the request arrived over TLS, directly or
// via a terminating proxy. Local development over plain HTTP gets a
// non-Secure cookie; everything else gets Secure.
func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Forwarded")), "proto=https")
}
