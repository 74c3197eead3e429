package cmd

import (
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfekit/bff/api"
	"github.com/mfekit/bff/identity"
	"github.com/mfekit/bff/session"
)

func TestSealKeyFromEnv(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	t.Setenv(envSealKey, hex.EncodeToString(key))

	got, err := sealKeyFromEnv()
	require.NoError(t, err)
	assert.Equal(t, key, got)
}

func TestSealKeyFromEnvMissing(t *testing.T) {
	t.Setenv(envSealKey, "")
	_, err := sealKeyFromEnv()
	assert.Error(t, err)
}

func TestSealKeyFromEnvBadLength(t *testing.T) {
	t.Setenv(envSealKey, "deadbeef")
	_, err := sealKeyFromEnv()
	assert.Error(t, err)
}

func TestSealKeyFromEnvNotHex(t *testing.T) {
	t.Setenv(envSealKey, "zz")
	_, err := sealKeyFromEnv()
	assert.Error(t, err)
}

func TestBuildVerifierHMAC(t *testing.T) {
	t.Setenv(envHMACSecret, "0123456789abcdef0123456789abcdef")
	defer resetServeFlags()
	verifierKind = "hmac"
	audience = "bff-local"
	issuer = "https://idp.example.com"

	v, err := buildVerifier(t.Context())
	require.NoError(t, err)
	assert.NotNil(t, v)
}

func TestBuildVerifierHMACMissingSecret(t *testing.T) {
	t.Setenv(envHMACSecret, "")
	defer resetServeFlags()
	verifierKind = "hmac"

	_, err := buildVerifier(t.Context())
	assert.Error(t, err)
}

func TestBuildVerifierUnknown(t *testing.T) {
	defer resetServeFlags()
	verifierKind = "saml"

	_, err := buildVerifier(t.Context())
	assert.Error(t, err)
}

func TestBuildStoreMemory(t *testing.T) {
	defer resetServeFlags()
	storeBackend = "memory"

	store, cleanup, err := buildStore()
	require.NoError(t, err)
	defer cleanup()
	assert.NotNil(t, store)
}

func TestBuildStoreBolt(t *testing.T) {
	key := make([]byte, 32)
	t.Setenv(envSealKey, hex.EncodeToString(key))
	defer resetServeFlags()
	storeBackend = "bolt"
	dataDir = t.TempDir()

	store, cleanup, err := buildStore()
	require.NoError(t, err)
	defer cleanup()
	assert.NotNil(t, store)
}

func TestBuildStoreUnknown(t *testing.T) {
	defer resetServeFlags()
	storeBackend = "cassandra"

	_, _, err := buildStore()
	assert.Error(t, err)
}

func TestRouterCORSAndSecurityHeaders(t *testing.T) {
	defer resetServeFlags()
	corsOrigins = []string{"https://shell.example.com"}

	verifier := identity.NewHMACVerifier([]byte("0123456789abcdef0123456789abcdef"), "bff-local", "", "local")
	a := api.New(verifier, session.NewMemoryStore())
	srv := httptest.NewServer(newRouter(a))
	t.Cleanup(srv.Close)

	// Preflight from an allowed shell origin.
	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/auth/login", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://shell.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", api.CSRFHeaderName)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "https://shell.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))

	// A foreign origin gets no CORS grant.
	req, err = http.NewRequest(http.MethodOptions, srv.URL+"/api/auth/login", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://evil.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))

	// Security headers ride on every response through the shared stack.
	resp, err = http.Get(srv.URL + "/api/auth/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
}

// resetServeFlags restores the package-level flag values the tests mutate.
func resetServeFlags() {
	storeBackend = "memory"
	verifierKind = "hmac"
	issuer = ""
	audience = ""
	oidcClientID = ""
	providerTag = "local"
	dataDir = "./data"
	mountPath = "/api/auth"
	corsOrigins = nil
}
