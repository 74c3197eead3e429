package identity

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
)

// HMACVerifier validates HS256-signed identity tokens against a shared
// secret. It is intended for deployments where the identity provider and the
// broker share a signing key (local development, internal providers).
type HMACVerifier struct {
	secret   []byte
	parser   *jwt.Parser
	provider string
}

var _ Verifier = (*HMACVerifier)(nil)

// NewHMACVerifier creates a verifier for HS256 tokens. The audience must
// match this deployment's registered client identifier. issuer may be empty
// to skip the issuer check. provider tags the resulting profiles.
func NewHMACVerifier(secret []byte, audience, issuer, provider string) *HMACVerifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &HMACVerifier{
		secret:   key,
		parser:   jwt.NewParser(opts...),
		provider: provider,
	}
}

// Verify checks structure, signature, audience, and expiry. Every failure
// collapses to ErrInvalidCredential.
func (v *HMACVerifier) Verify(ctx context.Context, rawCredential string) (Profile, error) {
	if err := ctx.Err(); err != nil {
		return Profile{}, err
	}

	claims := jwt.MapClaims{}
	token, err := v.parser.ParseWithClaims(rawCredential, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return Profile{}, ErrInvalidCredential
	}

	profile, ok := profileFromClaims(claims, v.provider)
	if !ok {
		return Profile{}, ErrInvalidCredential
	}
	return profile, nil
}

// profileFromClaims maps standard OIDC-style claims to a Profile. A missing
// subject makes the credential unusable; everything else is optional.
func profileFromClaims(claims jwt.MapClaims, provider string) (Profile, bool) {
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Profile{}, false
	}
	p := Profile{
		Subject:  sub,
		Provider: provider,
	}
	p.Email, _ = claims["email"].(string)
	p.Name, _ = claims["name"].(string)
	p.Picture, _ = claims["picture"].(string)
	if raw, ok := claims["roles"].([]any); ok {
		for _, r := range raw {
			if s, ok := r.(string); ok {
				p.Roles = append(p.Roles, s)
			}
		}
	}
	return p.Normalize(), true
}
