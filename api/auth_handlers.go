package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/mfekit/bff/session"
)

// Login handles POST /login: exchanges a third-party identity credential for
// a server-held session. On success the browser receives the handle in an
// HttpOnly cookie and the paired CSRF token in the response body.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	clientIP := extractClientIP(r)
	if blocked, retryAfter := a.limiter.check(clientIP); blocked {
		a.audit.logFailure(AuditLoginRateLimited, r, "ip rate limited",
			slog.String("client_ip", clientIP))
		writeRateLimited(w, retryAfter)
		return
	}

	req, ok := decodeJSON[LoginRequest](w, r, maxLoginBodySize)
	if !ok {
		return
	}
	if req.Credential == "" {
		writeError(w, http.StatusBadRequest, "credential is required")
		return
	}

	profile, err := a.verifier.Verify(r.Context(), req.Credential)
	if err != nil {
		a.limiter.recordFailure(clientIP)
		a.audit.logFailure(AuditLoginFailure, r, "credential rejected",
			slog.String("client_ip", clientIP))
		mapVerifyError(w, err)
		return
	}

	rec, err := session.New(profile, req.Credential, a.ttl)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to initialize session")
		return
	}
	if err := a.sessions.Create(r.Context(), rec); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to persist session")
		return
	}

	a.limiter.recordSuccess(clientIP)
	a.writeSessionCookie(w, r, rec.Handle, rec.ExpiresAt)

	a.audit.logEvent(AuditLoginSuccess, r, profile.Subject, handleAttr(rec.Handle))
	writeJSON(w, http.StatusOK, LoginResponse{
		CSRFToken: rec.CSRFToken,
		User:      profile,
	})
}

// Me handles GET /me. Read-only, so the cookie alone suffices — there is no
// state to forge. A dead handle clears the cookie so the browser stops
// presenting it.
func (a *API) Me(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(a.cookie.Name)
	if err != nil || cookie.Value == "" {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	rec, err := a.sessions.Get(r.Context(), cookie.Value)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			a.clearSessionCookie(w, r)
		}
		mapStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MeResponse{User: rec.Profile})
}

// CSRFToken handles GET /csrf: re-fetch of the ambient token for a module
// that initialized after the login happened. Runs behind RequireSession.
func (a *API) CSRFToken(w http.ResponseWriter, r *http.Request) {
	rec, ok := SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, CSRFResponse{CSRFToken: rec.CSRFToken})
}

// Logout handles POST /logout. A live session requires a valid CSRF pair to
// destroy; an already-dead session logs out successfully anyway, since a
// double logout is a benign race, not a client error.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(a.cookie.Name)
	if err != nil || cookie.Value == "" {
		writeJSON(w, http.StatusOK, StatusResponse{Success: true})
		return
	}

	rec, err := a.sessions.Get(r.Context(), cookie.Value)
	if err != nil {
		// Already gone: a double logout is benign. A store outage is not a
		// successful logout, though, and must not clear the cookie.
		if errors.Is(err, session.ErrNotFound) {
			a.clearSessionCookie(w, r)
			writeJSON(w, http.StatusOK, StatusResponse{Success: true})
			return
		}
		mapStoreError(w, err)
		return
	}

	if !a.validCSRF(rec, r) {
		a.audit.logFailure(AuditCSRFViolation, r, "csrf token mismatch on logout", handleAttr(rec.Handle))
		writeError(w, http.StatusForbidden, "invalid CSRF token")
		return
	}

	if err := a.sessions.Delete(r.Context(), rec.Handle); err != nil {
		mapStoreError(w, err)
		return
	}
	a.clearSessionCookie(w, r)

	a.audit.logEvent(AuditLogout, r, rec.Profile.Subject, handleAttr(rec.Handle))
	writeJSON(w, http.StatusOK, StatusResponse{Success: true})
}

// Refresh handles POST /refresh: extends the session deadline and re-issues
// the cookie with the new expiry. Runs behind the full guard pipeline; a
// session deleted mid-flight reports 401, never a corrupted record.
func (a *API) Refresh(w http.ResponseWriter, r *http.Request) {
	rec, ok := SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	extended, err := a.sessions.Touch(r.Context(), rec.Handle, time.Now().Add(a.ttl))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			a.clearSessionCookie(w, r)
		}
		mapStoreError(w, err)
		return
	}
	a.writeSessionCookie(w, r, extended.Handle, extended.ExpiresAt)

	a.audit.logEvent(AuditSessionRefreshed, r, extended.Profile.Subject, handleAttr(extended.Handle))
	writeJSON(w, http.StatusOK, StatusResponse{Success: true})
}

// UserProfile handles GET /user/profile, an example read-only protected
// resource.
func (a *API) UserProfile(w http.ResponseWriter, r *http.Request) {
	rec, ok := SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, MeResponse{User: rec.Profile})
}

// UserSettings handles POST /user/settings, an example state-changing
// protected resource behind the full guard pipeline.
func (a *API) UserSettings(w http.ResponseWriter, r *http.Request) {
	if _, ok := SessionFromContext(r.Context()); !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Success: true, Message: "settings updated"})
}

func (a *API) validCSRF(rec session.Record, r *http.Request) bool {
	presented := r.Header.Get(CSRFHeaderName)
	if presented == "" {
		return false
	}
	return equalToken(rec.CSRFToken, presented)
}
