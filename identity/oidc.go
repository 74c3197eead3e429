package identity

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
)

// defaultVerifyTimeout bounds a single verification round trip to the
// provider's key set. Verification must fail fast rather than hang a login
// request on an unreachable provider.
const defaultVerifyTimeout = 5 * time.Second

// OIDCVerifier validates ID tokens against a remote OpenID Connect provider.
// Signature checks run against the provider's published key set, so key
// rotation on the provider side needs no redeploy here.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
	provider string
	timeout  time.Duration
}

var _ Verifier = (*OIDCVerifier)(nil)

// OIDCOption configures an OIDCVerifier.
type OIDCOption func(*OIDCVerifier)

// WithVerifyTimeout overrides the per-call verification timeout.
func WithVerifyTimeout(d time.Duration) OIDCOption {
	return func(v *OIDCVerifier) {
		v.timeout = d
	}
}

// NewOIDCVerifier discovers the provider's configuration and returns a
// verifier for ID tokens issued to clientID. Discovery is a network call;
// the given ctx bounds it.
func NewOIDCVerifier(ctx context.Context, issuer, clientID, providerTag string, opts ...OIDCOption) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("discovering oidc provider %s: %w", issuer, err)
	}
	v := &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
		provider: providerTag,
		timeout:  defaultVerifyTimeout,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify validates the raw ID token. A token the provider rejects returns
// ErrInvalidCredential; failure to reach the provider before the deadline
// returns ErrVerifierUnavailable. The two are never folded together.
func (v *OIDCVerifier) Verify(ctx context.Context, rawCredential string) (Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	idToken, err := v.verifier.Verify(ctx, rawCredential)
	if err != nil {
		if isTransient(err) {
			return Profile{}, ErrVerifierUnavailable
		}
		return Profile{}, ErrInvalidCredential
	}

	var claims struct {
		Email   string   `json:"email"`
		Name    string   `json:"name"`
		Picture string   `json:"picture"`
		Roles   []string `json:"roles"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return Profile{}, ErrInvalidCredential
	}

	p := Profile{
		Subject:  idToken.Subject,
		Email:    claims.Email,
		Name:     claims.Name,
		Picture:  claims.Picture,
		Roles:    claims.Roles,
		Provider: v.provider,
	}
	return p.Normalize(), nil
}

// isTransient reports whether err is a transport-level failure (deadline,
// refused connection, key set fetch) rather than a rejected token.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
