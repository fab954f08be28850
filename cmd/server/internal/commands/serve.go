package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"filippo.io/csrf"
	"github.com/oakensoft/tenantgate/internal/authz"
	"github.com/oakensoft/tenantgate/internal/client"
	"github.com/oakensoft/tenantgate/internal/consent"
	"github.com/oakensoft/tenantgate/internal/directory"
	httpmiddleware "github.com/oakensoft/tenantgate/internal/http"
	"github.com/oakensoft/tenantgate/internal/logger"
	"github.com/oakensoft/tenantgate/internal/principal"
	"github.com/oakensoft/tenantgate/internal/server"
	"github.com/oakensoft/tenantgate/internal/store"
	memorystore "github.com/oakensoft/tenantgate/internal/store/memory"
	postgresstore "github.com/oakensoft/tenantgate/internal/store/postgres"
	"github.com/oakensoft/tenantgate/internal/telemetry"
	"github.com/rs/cors"
)

type ServeCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8443" env:"TENANTGATE_LISTEN"`
	Cert   string `help:"path to TLS cert file" default:"" env:"TENANTGATE_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"TENANTGATE_TLS_KEY"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"https://localhost" env:"TENANTGATE_CORS_ORIGINS"`

	// Admin decision configuration
	AllowList string `help:"path to the admin roleTemplateId allow-list YAML" default:"allowlist.yaml" env:"TENANTGATE_ALLOWLIST"`

	// Directory lookup configuration
	Directory DirectoryFlags `embed:"" prefix:"directory-"`

	// Identity token verification (optional fallback when no gateway
	// assertion header is present)
	Token TokenFlags `embed:"" prefix:"token-"`

	// Admin consent configuration
	Consent ConsentFlags `embed:"" prefix:"consent-"`

	// Development and operational modes
	Tracing bool `help:"enable tracing" default:"false" env:"TENANTGATE_TRACING"`

	// Store configuration
	StoreType     string             `help:"store type (memory or postgres)" default:"memory" env:"TENANTGATE_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

type DirectoryFlags struct {
	BaseURL      string        `help:"directory API base URL" default:"" env:"TENANTGATE_DIRECTORY_BASE_URL"`
	TokenURL     string        `help:"token endpoint for the client-credentials grant" default:"" env:"TENANTGATE_DIRECTORY_TOKEN_URL"`
	ClientID     string        `help:"service principal client ID for role lookups" default:"" env:"TENANTGATE_DIRECTORY_CLIENT_ID"`
	ClientSecret string        `help:"service principal client secret" default:"" env:"TENANTGATE_DIRECTORY_CLIENT_SECRET"`
	Timeout      time.Duration `help:"directory request timeout" default:"10s" env:"TENANTGATE_DIRECTORY_TIMEOUT"`
	MaxTries     uint          `help:"maximum attempts per directory request" default:"3" env:"TENANTGATE_DIRECTORY_MAX_TRIES"`
}

func (d *DirectoryFlags) Validate() error {
	if d.ClientID != "" && d.TokenURL == "" {
		return errors.New("directory token URL is required when a client ID is set (--directory-token-url)")
	}
	return nil
}

type TokenFlags struct {
	Issuer   string `help:"expected issuer of bearer identity tokens" default:"" env:"TENANTGATE_TOKEN_ISSUER"`
	Audience string `help:"expected audience of bearer identity tokens" default:"" env:"TENANTGATE_TOKEN_AUDIENCE"`
	JWKSURL  string `help:"JWKS endpoint used to verify bearer identity tokens" default:"" env:"TENANTGATE_TOKEN_JWKS_URL"`
}

func (t *TokenFlags) Validate() error {
	if t.Issuer != "" && t.JWKSURL == "" {
		return errors.New("JWKS URL is required when a token issuer is set (--token-jwks-url)")
	}
	return nil
}

type ConsentFlags struct {
	AuthorityBase string `help:"consent authority base URL" default:"https://login.microsoftonline.com" env:"TENANTGATE_CONSENT_AUTHORITY"`
	ClientID      string `help:"application client ID presented for admin consent" default:"" env:"TENANTGATE_CONSENT_CLIENT_ID"`
	Scope         string `help:"scope requested during admin consent" default:"https://graph.microsoft.com/.default" env:"TENANTGATE_CONSENT_SCOPE"`
	RedirectURI   string `help:"redirect URI registered for the consent return" default:"" env:"TENANTGATE_CONSENT_REDIRECT_URI"`
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Query Configuration
	QueryTimeout int32 `help:"query timeout in seconds" default:"10"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"TENANTGATE_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

func (c *ServeCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx := context.Background()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	// Setup telemetry if enabled
	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, "tenantgate-server", globals.Version)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	// Load the admin role allow-list
	allowList, err := authz.LoadAllowList(c.AllowList)
	if err != nil {
		return fmt.Errorf("failed to load allow-list: %w", err)
	}
	log.Info().
		Int("role_count", len(allowList.IDs())).
		Str("path", c.AllowList).
		Msg("Loaded admin role allow-list")

	// Directory client with retrying transport; retries live in the HTTP
	// client, not in the decision engine.
	roleLookup := directory.NewClient(directory.Config{
		BaseURL:      c.Directory.BaseURL,
		TokenURL:     c.Directory.TokenURL,
		ClientID:     c.Directory.ClientID,
		ClientSecret: c.Directory.ClientSecret,
		HTTPClient:   client.NewRetryingHTTPClient(c.Directory.Timeout, c.Directory.MaxTries),
	})

	engine := authz.NewEngine(roleLookup, allowList)

	// Create the config store based on store type
	var configStore store.ConfigStore

	switch c.StoreType {
	case "postgres":
		pgStore, err := postgresstore.NewConfigStore(ctx, &postgresstore.ConfigStoreConfig{
			ConnString:          c.PostgresStore.ConnString,
			AutoMigrate:         c.PostgresStore.AutoMigrate,
			QueryTimeoutSeconds: c.PostgresStore.QueryTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to create config store: %w", err)
		}
		defer pgStore.Close()
		configStore = pgStore
		log.Info().Msg("Using PostgreSQL config store")

	default:
		configStore = memorystore.NewConfigStore()
		log.Info().Msg("Using in-memory config store")
	}

	endpoint := consent.Endpoint{
		AuthorityBase: c.Consent.AuthorityBase,
		ClientID:      c.Consent.ClientID,
		Scope:         c.Consent.Scope,
		RedirectURI:   c.Consent.RedirectURI,
	}

	srv := server.NewServer(engine, configStore, endpoint)

	// Bearer token fallback for callers outside the gateway. JWKS responses
	// honour cache headers, unlike role lookups which are never cached.
	if c.Token.Issuer != "" {
		keys := principal.NewJWKSCache(c.Token.JWKSURL, client.NewInMemoryCachingHTTPClient())
		srv = srv.WithTokenExtractor(principal.NewTokenExtractor(c.Token.Issuer, c.Token.Audience, keys))
		log.Info().Str("issuer", c.Token.Issuer).Msg("Bearer identity tokens enabled")
	}

	mux := srv.Handler(log)

	// Client IP middleware for audit logging
	clientIPMiddleware := httpmiddleware.ClientIPMiddleware()

	// CSRF protection for the consent flow (not applied to API routes)
	protection := csrf.New()

	// API routes get CORS, consent routes get CSRF
	handler := clientIPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isAPIRoute(r.URL.Path) {
			withCORS(c.CORSOrigins, mux).ServeHTTP(w, r)
		} else {
			protection.Handler(mux).ServeHTTP(w, r)
		}
	}))

	if c.Cert == "" && c.Key == "" {
		log.Warn().Str("addr", c.Listen).Msg("Starting HTTP server without TLS. This should only be used behind a terminating proxy!")
		return configureHTTPServer(c.Listen, handler).ListenAndServe()
	}

	if _, err := os.Stat(c.Cert); err != nil {
		return fmt.Errorf("TLS certificate not found at %s: %w", c.Cert, err)
	}
	if _, err := os.Stat(c.Key); err != nil {
		return fmt.Errorf("TLS key not found at %s: %w", c.Key, err)
	}

	log.Info().Str("addr", c.Listen).Msg("Starting HTTPS server")
	return configureHTTPServer(c.Listen, handler).ListenAndServeTLS(c.Cert, c.Key)
}

// isAPIRoute returns true if the path is an API route that needs CORS instead of CSRF
func isAPIRoute(path string) bool {
	return strings.HasPrefix(path, "/api/") || path == "/healthz"
}

// withCORS adds CORS support to an API handler.
func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "x-ms-client-principal"},
		AllowCredentials: true, // Required for cookie-based consent state
	})
	return middleware.Handler(h)
}
