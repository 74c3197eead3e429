package identity

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAudience = "bff-local"
	testIssuer   = "https://idp.example.com"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	raw, err := token.SignedString(secret)
	require.NoError(t, err)
	return raw
}

func validClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":     testIssuer,
		"sub":     "u1",
		"aud":     testAudience,
		"email":   "alice@x.com",
		"name":    "Alice Example",
		"picture": "https://idp.example.com/alice.png",
		"iat":     now.Unix(),
		"exp":     now.Add(time.Hour).Unix(),
	}
}

func TestHMACVerifierValid(t *testing.T) {
	v := NewHMACVerifier(testSecret, testAudience, testIssuer, "local")

	raw := signToken(t, testSecret, validClaims())
	profile, err := v.Verify(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, "u1", profile.Subject)
	assert.Equal(t, "alice@x.com", profile.Email)
	assert.Equal(t, "Alice Example", profile.Name)
	assert.Equal(t, "local", profile.Provider)
	assert.Equal(t, []string{"user"}, profile.Roles, "missing roles default to user")
}

func TestHMACVerifierRoles(t *testing.T) {
	v := NewHMACVerifier(testSecret, testAudience, testIssuer, "local")

	claims := validClaims()
	claims["roles"] = []any{"admin", "user"}
	profile, err := v.Verify(context.Background(), signToken(t, testSecret, claims))
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "user"}, profile.Roles)
}

// Every rejection reason must collapse to the same error so a caller cannot
// probe which check failed.
func TestHMACVerifierRejections(t *testing.T) {
	v := NewHMACVerifier(testSecret, testAudience, testIssuer, "local")

	expired := validClaims()
	expired["exp"] = time.Now().Add(-time.Minute).Unix()

	wrongAud := validClaims()
	wrongAud["aud"] = "someone-else"

	wrongIss := validClaims()
	wrongIss["iss"] = "https://evil.example.com"

	noSub := validClaims()
	delete(noSub, "sub")

	noExp := validClaims()
	delete(noExp, "exp")

	cases := map[string]string{
		"malformed":      "not-a-jwt",
		"empty":          "",
		"expired":        signToken(t, testSecret, expired),
		"wrong audience": signToken(t, testSecret, wrongAud),
		"wrong issuer":   signToken(t, testSecret, wrongIss),
		"bad signature":  signToken(t, []byte("another-secret-another-secret-xx"), validClaims()),
		"missing sub":    signToken(t, testSecret, noSub),
		"missing exp":    signToken(t, testSecret, noExp),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), raw)
			assert.ErrorIs(t, err, ErrInvalidCredential)
		})
	}
}

func TestProfileNormalize(t *testing.T) {
	// NFD "é" (e + combining acute) must normalize to the NFC form.
	p := Profile{Subject: "u1", Name: "René"}.Normalize()
	assert.Equal(t, "René", p.Name)
	assert.Equal(t, []string{"user"}, p.Roles)

	// Existing roles are kept as-is.
	p = Profile{Subject: "u1", Roles: []string{"admin"}}.Normalize()
	assert.Equal(t, []string{"admin"}, p.Roles)
}

func TestIsTransient(t *testing.T) {
	transient := []error{
		context.DeadlineExceeded,
		context.Canceled,
		&url.Error{Op: "Get", URL: "https://idp.example.com/keys", Err: errors.New("connection refused")},
		fmt.Errorf("fetching keys: %w", &url.Error{Op: "Get", URL: "https://idp.example.com/keys", Err: errors.New("timeout")}),
	}
	for _, err := range transient {
		assert.True(t, isTransient(err), "%v should classify as transient", err)
	}

	rejected := []error{
		errors.New("oidc: id token issued by a different provider"),
		errors.New("failed to verify signature"),
	}
	for _, err := range rejected {
		assert.False(t, isTransient(err), "%v should classify as rejection", err)
	}
}
