// Package session holds the authoritative mapping from session handles to
// server-side session state.
//
// A session's anti-forgery token lives inside the same record as the handle
// that owns it. Creating and deleting them as one record makes the pairing
// invariant hold by construction: the token can never outlive its session and
// no session exists with zero or two live tokens.
package session

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mfekit/bff/identity"
	"github.com/mfekit/bff/internal/util"
)

var (
	// ErrNotFound is returned for handles that do not exist or whose
	// record has expired. Callers cannot tell the two apart.
	ErrNotFound = errors.New("session not found")

	// ErrHandleExists is returned when Create is called with a handle that
	// is already live. With 256-bit random handles this indicates a caller
	// bug, not a collision.
	ErrHandleExists = errors.New("session handle already exists")
)

// Record is the server-side state of one authenticated session. It carries
// both browser-facing capabilities: the handle (cookie-borne) and the CSRF
// token (header-borne).
type Record struct {
	Handle     string           `json:"handle"`
	CSRFToken  string           `json:"csrf_token"`
	Profile    identity.Profile `json:"profile"`
	Credential string           `json:"credential"` // raw upstream credential, never echoed to the browser
	CreatedAt  time.Time        `json:"created_at"`
	ExpiresAt  time.Time        `json:"expires_at"`
}

// Expired reports whether the record's absolute deadline has passed.
func (r Record) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// NewHandle generates a session handle with 256 bits of entropy. Handles are
// the only browser-side reference to a session, so they must not be
// sequential or time-derived.
func NewHandle() (string, error) {
	return util.RandomToken(32)
}

// NewCSRFToken mints the anti-forgery token paired with a handle.
func NewCSRFToken() string {
	return uuid.NewString()
}

// New assembles a fresh record for a verified identity. The raw credential is
// retained server-side only.
func New(profile identity.Profile, rawCredential string, ttl time.Duration) (Record, error) {
	handle, err := NewHandle()
	if err != nil {
		return Record{}, err
	}
	now := time.Now()
	return Record{
		Handle:     handle,
		CSRFToken:  NewCSRFToken(),
		Profile:    profile,
		Credential: rawCredential,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}, nil
}
