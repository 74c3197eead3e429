package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/mfekit/bff/session"
)

type contextKey int

const sessionKey contextKey = iota

// RequireSession validates the cookie-borne handle against the session store
// and attaches the resolved record to the request context. Absent, expired,
// and revoked sessions are indistinguishable: all clear the stale cookie and
// report 401.
func (a *API) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(a.cookie.Name)
		if err != nil || cookie.Value == "" {
			writeError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		rec, err := a.sessions.Get(r.Context(), cookie.Value)
		if err != nil {
			// Only a definitively dead session clears the cookie. A store
			// outage must not destroy a handle that is intact server-side.
			if errors.Is(err, session.ErrNotFound) {
				a.audit.logFailure(AuditSessionExpired, r, "no live session for handle",
					handleAttr(cookie.Value))
				a.clearSessionCookie(w, r)
			}
			mapStoreError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), sessionKey, rec)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireCSRF enforces the header-token half of the capability pair on
// state-changing methods. It must run after RequireSession; the comparison
// needs the record's minted token.
func (a *API) RequireCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		rec, ok := SessionFromContext(r.Context())
		if !ok {
			// Misconfigured route: RequireCSRF mounted without
			// RequireSession.
			writeError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		presented := r.Header.Get(CSRFHeaderName)
		if presented == "" {
			a.audit.logFailure(AuditCSRFViolation, r, "missing csrf token", handleAttr(rec.Handle))
			writeError(w, http.StatusForbidden, "missing CSRF token")
			return
		}
		if !equalToken(rec.CSRFToken, presented) {
			a.audit.logFailure(AuditCSRFViolation, r, "csrf token mismatch", handleAttr(rec.Handle))
			writeError(w, http.StatusForbidden, "invalid CSRF token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// SessionFromContext returns the record attached by RequireSession.
func SessionFromContext(ctx context.Context) (session.Record, bool) {
	rec, ok := ctx.Value(sessionKey).(session.Record)
	return rec, ok
}

// equalToken compares tokens in constant time.
func equalToken(minted, presented string) bool {
	return subtle.ConstantTimeCompare([]byte(minted), []byte(presented)) == 1
}
