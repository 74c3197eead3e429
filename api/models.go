package api

import "github.com/mfekit/bff/identity"

// LoginRequest is the JSON body for POST /login. The credential is the
// opaque, externally signed identity token obtained by the browser.
type LoginRequest struct {
	Credential string `json:"credential"`
}

// LoginResponse is returned from POST /login. The CSRF token travels in the
// body so module code can read it; the session handle travels only in the
// HttpOnly cookie.
type LoginResponse struct {
	CSRFToken string           `json:"csrfToken"`
	User      identity.Profile `json:"user"`
}

// MeResponse is returned from GET /me and GET /user/profile.
type MeResponse struct {
	User identity.Profile `json:"user"`
}

// CSRFResponse is returned from GET /csrf.
type CSRFResponse struct {
	CSRFToken string `json:"csrfToken"`
}

// StatusResponse is returned from POST /logout, /refresh, and
// /user/settings.
type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned from GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ErrorResponse is returned for all error cases.
type ErrorResponse struct {
	Error string `json:"error"`
}
