package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/mfekit/bff/identity"
	"github.com/mfekit/bff/session"
)

// maxLoginBodySize bounds the login request body. Identity tokens are a few
// kilobytes; anything larger is garbage.
const maxLoginBodySize = 64 * 1024

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// mapVerifyError translates identity verification failures to HTTP statuses.
// Rejected credentials and unreachable verifiers map to different statuses
// so client retry logic can tell them apart; nothing else is revealed.
func mapVerifyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, identity.ErrVerifierUnavailable):
		writeError(w, http.StatusServiceUnavailable, "identity provider unavailable")
	case errors.Is(err, identity.ErrInvalidCredential):
		writeError(w, http.StatusUnauthorized, "authentication failed")
	default:
		writeError(w, http.StatusInternalServerError, "authentication failed")
	}
}

// mapStoreError translates session store failures. Absent and expired are
// indistinguishable to the caller and report not-authenticated; an
// infrastructure failure reports the store unavailable, so an intact
// server-side session is never mistaken for a dead one during an outage.
func mapStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	writeError(w, http.StatusServiceUnavailable, "session store unavailable")
}

// decodeJSON decodes the request body into T, enforcing a size limit.
// On failure it writes the error response and returns ok=false.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request, maxSize int64) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "request body is required")
		} else {
			writeError(w, http.StatusBadRequest, "invalid request body")
		}
		return v, false
	}
	return v, true
}
