package cmd

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/mfekit/bff/api"
	"github.com/mfekit/bff/identity"
	"github.com/mfekit/bff/session"
)

// Secrets come from the environment, never from flags, so they stay out of
// process listings and shell history.
const (
	envHMACSecret = "BFFD_HMAC_SECRET"
	envSealKey    = "BFFD_SEAL_KEY"
	envRedisPass  = "BFFD_REDIS_PASSWORD"
)

var (
	port       int
	mountPath  string
	sessionTTL time.Duration

	storeBackend string
	dataDir      string
	redisAddr    string
	redisDB      int

	verifierKind string
	issuer       string
	audience     string
	oidcClientID string
	providerTag  string

	cookieName  string
	cookiePath  string
	corsOrigins []string

	tlsCert string
	tlsKey  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the session broker",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

		verifier, err := buildVerifier(cmd.Context())
		if err != nil {
			return err
		}

		sessions, cleanup, err := buildStore()
		if err != nil {
			return err
		}
		defer cleanup()

		a := api.New(verifier, sessions,
			api.WithLogger(logger),
			api.WithSessionTTL(sessionTTL),
			api.WithCookieConfig(api.CookieConfig{Name: cookieName, Path: cookiePath}),
			api.WithAlertFunc(func(e api.AlertEvent) {
				logger.Warn("security alert",
					"type", string(e.Type),
					"message", e.Message,
					"count", e.Count,
					"threshold", e.Threshold,
				)
			}),
		)

		r := newRouter(a)

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		done := make(chan error, 1)
		go func() {
			var err error
			if tlsCert != "" && tlsKey != "" {
				err = server.ListenAndServeTLS(tlsCert, tlsKey)
			} else {
				err = server.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		logger.Info("session broker listening",
			"port", port,
			"mount", mountPath,
			"store", storeBackend,
			"verifier", verifierKind,
			"tls", tlsCert != "",
		)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("shutting down", "signal", sig.String())
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

// newRouter assembles the shared middleware stack and mounts the broker.
func newRouter(a *api.API) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(api.SecurityHeaders)
	if len(corsOrigins) > 0 {
		// Credentialed CORS for the shell's origins. Wildcards are not
		// usable here: the browser refuses "*" with credentials.
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   corsOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", api.CSRFHeaderName},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	r.Mount(mountPath, a.Router())
	return r
}

func buildVerifier(ctx context.Context) (identity.Verifier, error) {
	switch verifierKind {
	case "hmac":
		secret := os.Getenv(envHMACSecret)
		if secret == "" {
			return nil, fmt.Errorf("%s must be set for the hmac verifier", envHMACSecret)
		}
		return identity.NewHMACVerifier([]byte(secret), audience, issuer, providerTag), nil
	case "oidc":
		if issuer == "" || oidcClientID == "" {
			return nil, errors.New("--issuer and --oidc-client-id are required for the oidc verifier")
		}
		return identity.NewOIDCVerifier(ctx, issuer, oidcClientID, providerTag)
	default:
		return nil, fmt.Errorf("unknown verifier %q (want hmac or oidc)", verifierKind)
	}
}

func buildStore() (session.Store, func(), error) {
	switch storeBackend {
	case "memory":
		return session.NewMemoryStore(), func() {}, nil
	case "bolt":
		key, err := sealKeyFromEnv()
		if err != nil {
			return nil, nil, err
		}
		if err := os.MkdirAll(dataDir, 0o700); err != nil {
			return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		store, err := session.NewBoltStore(filepath.Join(dataDir, "sessions.db"), key)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open session store: %w", err)
		}
		return store, func() { store.Close() }, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     redisAddr,
			Password: os.Getenv(envRedisPass),
			DB:       redisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("failed to reach redis at %s: %w", redisAddr, err)
		}
		return session.NewRedisStore(rdb), func() { rdb.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q (want memory, bolt or redis)", storeBackend)
	}
}

// sealKeyFromEnv decodes the 32-byte hex key sealing records at rest, then
// scrubs the environment copy.
func sealKeyFromEnv() ([]byte, error) {
	raw := os.Getenv(envSealKey)
	if raw == "" {
		return nil, fmt.Errorf("%s must be set for the bolt store", envSealKey)
	}
	key, err := hex.DecodeString(raw)
	if err != nil || len(key) != 32 {
		return nil, fmt.Errorf("%s must be 64 hex characters (32 bytes)", envSealKey)
	}
	os.Unsetenv(envSealKey)
	return key, nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on")
	serveCmd.Flags().StringVar(&mountPath, "mount", "/api/auth", "Path prefix the broker is mounted under")
	serveCmd.Flags().DurationVar(&sessionTTL, "session-ttl", api.DefaultSessionTTL, "Session lifetime; refresh extends it")

	serveCmd.Flags().StringVar(&storeBackend, "store", "memory", "Session store backend: memory, bolt or redis")
	serveCmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Directory for the bolt store")
	serveCmd.Flags().StringVar(&redisAddr, "redis-addr", "localhost:6379", "Redis address for the redis store")
	serveCmd.Flags().IntVar(&redisDB, "redis-db", 0, "Redis database index")

	serveCmd.Flags().StringVar(&verifierKind, "verifier", "hmac", "Credential verifier: hmac or oidc")
	serveCmd.Flags().StringVar(&issuer, "issuer", "", "Expected token issuer")
	serveCmd.Flags().StringVar(&audience, "audience", "", "Expected token audience (hmac verifier)")
	serveCmd.Flags().StringVar(&oidcClientID, "oidc-client-id", "", "OIDC client ID (oidc verifier)")
	serveCmd.Flags().StringVar(&providerTag, "provider", "local", "Provider label attached to verified profiles")

	serveCmd.Flags().StringVar(&cookieName, "cookie-name", api.DefaultCookieName, "Session cookie name")
	serveCmd.Flags().StringVar(&cookiePath, "cookie-path", "/", "Session cookie path")
	serveCmd.Flags().StringSliceVar(&corsOrigins, "cors-origin", nil, "Allowed CORS origins (repeatable); empty disables CORS")

	serveCmd.Flags().StringVar(&tlsCert, "tls-cert", "", "Path to TLS certificate file")
	serveCmd.Flags().StringVar(&tlsKey, "tls-key", "", "Path to TLS key file")
}
