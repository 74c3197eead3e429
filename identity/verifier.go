package identity

import (
	"context"
	"errors"
)

var (
	// ErrInvalidCredential is returned for every rejected credential:
	// malformed, expired, wrong audience, or bad signature. The checks are
	// deliberately not distinguished so a caller cannot probe which one
	// failed.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrVerifierUnavailable is returned when the verification backend
	// cannot be reached before the deadline. It is distinct from
	// ErrInvalidCredential so callers can retry transient failures without
	// retrying rejected credentials.
	ErrVerifierUnavailable = errors.New("identity verifier unavailable")
)

// Verifier validates a raw identity credential and extracts the verified
// profile. Implementations are side-effect free and safe for concurrent use.
type Verifier interface {
	Verify(ctx context.Context, rawCredential string) (Profile, error)
}
