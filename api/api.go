// Package api implements the HTTP surface of the authentication broker: the
// login exchange, session introspection, refresh, logout, and the guard
// pipeline applied to protected endpoints.
package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/mfekit/bff/identity"
	"github.com/mfekit/bff/session"
)

// DefaultSessionTTL is the session lifetime when none is configured.
const DefaultSessionTTL = 24 * time.Hour

//go:embed openapi.yaml
var openapiSpec []byte

// API holds the dependencies needed by the broker handlers.
type API struct {
	verifier identity.Verifier
	sessions session.Store
	ttl      time.Duration
	cookie   CookieConfig
	logger   *slog.Logger
	alertFn  AlertFunc
	audit    *auditLogger
	limiter  *loginRateLimiter
}

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events. If not set, a
// default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.logger = logger
	}
}

// WithSessionTTL sets the session lifetime. The cookie Max-Age follows it.
func WithSessionTTL(ttl time.Duration) Option {
	return func(a *API) {
		a.ttl = ttl
	}
}

// WithCookieConfig overrides the session cookie name and path.
func WithCookieConfig(cfg CookieConfig) Option {
	return func(a *API) {
		a.cookie = cfg.normalize()
	}
}

// WithAlertFunc installs a callback fired when the login-failure rate crosses
// the anomaly threshold.
func WithAlertFunc(fn AlertFunc) Option {
	return func(a *API) {
		a.alertFn = fn
	}
}

// New creates a new API instance around a verifier and a session store. The
// audit logger is assembled after all options run, so option order does not
// matter.
func New(verifier identity.Verifier, sessions session.Store, opts ...Option) *API {
	a := &API{
		verifier: verifier,
		sessions: sessions,
		ttl:      DefaultSessionTTL,
		cookie:   CookieConfig{}.normalize(),
		logger:   slog.New(slog.NewJSONHandler(os.Stderr, nil)),
		limiter:  newLoginRateLimiter(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.audit = newAuditLogger(a.logger)
	if a.alertFn != nil {
		a.audit.metrics = newMetricsCollector(a.alertFn)
	}
	return a
}

// Router returns a chi.Router with the auth endpoints, the example protected
// resources, and the API documentation mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/auth/openapi.yaml",
		Path:    "api/auth/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/auth/openapi.yaml",
		Path:    "api/auth/redoc",
	}, nil))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Timestamp: time.Now().UTC().Format(time.RFC3339)})
	})

	r.Post("/login", a.Login)
	r.Get("/me", a.Me)
	r.With(a.RequireSession).Get("/csrf", a.CSRFToken)
	r.Post("/logout", a.Logout)
	r.With(a.Protect).Post("/refresh", a.Refresh)

	// Example protected resources, guarded the same way any downstream
	// handler would be.
	r.With(a.RequireSession).Get("/user/profile", a.UserProfile)
	r.With(a.Protect).Post("/user/settings", a.UserSettings)

	return r
}

// Protect is the guard pipeline for protected, state-changing operations:
// session validation first, then CSRF. The order matters — a request with
// neither capability reports not-authenticated, not a confusing CSRF error.
func (a *API) Protect(next http.Handler) http.Handler {
	return a.RequireSession(a.RequireCSRF(next))
}
