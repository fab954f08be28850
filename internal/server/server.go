package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/oakensoft/tenantgate/internal/authz"
	"github.com/oakensoft/tenantgate/internal/consent"
	"github.com/oakensoft/tenantgate/internal/logger"
	"github.com/oakensoft/tenantgate/internal/principal"
	"github.com/oakensoft/tenantgate/internal/store"
	"github.com/oakensoft/tenantgate/internal/telemetry"
	"github.com/rs/zerolog"
)

// clientPrincipalHeader carries the platform's base64 JSON identity assertion.
const clientPrincipalHeader = "x-ms-client-principal"

// Pinger is implemented by stores that can verify backend connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wraps the HTTP surface: admin status checks, tenant config
// persistence, and the admin consent handshake.
type Server struct {
	engine  *authz.Engine
	configs store.ConfigStore
	consent consent.Endpoint
	tokens  *principal.TokenExtractor
	metrics *telemetry.Metrics
}

// NewServer creates a new server with the given decision engine, config store
// and consent endpoint.
func NewServer(engine *authz.Engine, configs store.ConfigStore, endpoint consent.Endpoint) *Server {
	return &Server{
		engine:  engine,
		configs: configs,
		consent: endpoint,
		metrics: telemetry.GetMetrics(),
	}
}

// WithTokenExtractor enables extracting the caller identity from a verified
// bearer token when no gateway assertion header is present.
func (s *Server) WithTokenExtractor(tokens *principal.TokenExtractor) *Server {
	s.tokens = tokens
	return s
}

// extractPrincipal resolves the caller identity, preferring the gateway
// assertion header and falling back to a verified bearer token when one is
// configured.
func (s *Server) extractPrincipal(r *http.Request) (*principal.Principal, error) {
	if raw := r.Header.Get(clientPrincipalHeader); raw != "" || s.tokens == nil {
		return principal.ExtractPrincipal(raw)
	}

	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return nil, fmt.Errorf("%w: no assertion or bearer token", principal.ErrBadAssertion)
	}

	return s.tokens.ExtractPrincipal(r.Context(), token)
}

// Handler returns the HTTP handler for the server
func (s *Server) Handler(log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint for load balancer
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	mux.HandleFunc("GET /api/checkAdminStatus", s.handleCheckAdminStatus)
	mux.HandleFunc("POST /api/getRoles", s.handleGetRoles)
	mux.HandleFunc("POST /api/saveConfig", s.handleSaveConfig)
	mux.HandleFunc("GET /api/getConfig", s.handleGetConfig)

	mux.HandleFunc("GET /consent/start", s.handleConsentStart)
	mux.HandleFunc("GET /consent/callback", s.handleConsentCallback)

	return logger.NewHTTPRequests(log)(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if pinger, ok := s.configs.(Pinger); ok {
		if err := pinger.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeMessage writes the standard `{message}` error body.
func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
