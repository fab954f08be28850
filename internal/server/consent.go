package server

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/oakensoft/tenantgate/internal/consent"
	"github.com/rs/zerolog"
)

const stateCookieName = "consent_state"

// cookieNonceStore keeps the pending consent nonce in a short-lived cookie so
// the handshake survives the round trip through the consent endpoint without
// server-side session state. The cookie is cleared on every Take, which makes
// the nonce single use.
type cookieNonceStore struct {
	w http.ResponseWriter
	r *http.Request
}

func (c *cookieNonceStore) Save(nonce, tenantID string) error {
	value := nonce + "." + base64.RawURLEncoding.EncodeToString([]byte(tenantID))

	http.SetCookie(c.w, &http.Cookie{
		Name:     stateCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300, // 5 minutes - enough time for the consent round trip
	})

	return nil
}

func (c *cookieNonceStore) Take() (string, string, bool) {
	cookie, err := c.r.Cookie(stateCookieName)

	// Clear the cookie whether or not it was present or parseable.
	http.SetCookie(c.w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})

	if err != nil {
		return "", "", false
	}

	nonce, encodedTenant, ok := strings.Cut(cookie.Value, ".")
	if !ok || nonce == "" {
		return "", "", false
	}

	tenant, err := base64.RawURLEncoding.DecodeString(encodedTenant)
	if err != nil {
		return "", "", false
	}

	return nonce, string(tenant), true
}

// handleConsentStart begins the admin consent handshake. The caller must
// present an identity assertion that the decision engine confirms as a tenant
// administrator before being redirected to the consent endpoint.
func (s *Server) handleConsentStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := zerolog.Ctx(ctx)

	p, err := s.extractPrincipal(r)
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	verdict, err := s.engine.DecideAdmin(ctx, p)
	if err != nil {
		log.Error().Err(err).Msg("admin check failed before consent")
		writeMessage(w, http.StatusInternalServerError, "Admin status could not be determined")
		return
	}
	if !verdict.IsAdmin {
		writeMessage(w, http.StatusForbidden, "Tenant administrator role required")
		return
	}

	tenantID := r.URL.Query().Get("tenantId")
	if tenantID == "" {
		tenantID = verdict.TenantID
	}

	h := consent.NewHandshake(s.consent, &cookieNonceStore{w: w, r: r})
	if err := h.AdminConfirmed(tenantID); err != nil {
		writeMessage(w, http.StatusInternalServerError, "Failed to start consent flow")
		return
	}

	redirectURL, err := h.Begin()
	if err != nil {
		log.Error().Err(err).Msg("failed to begin consent flow")
		writeMessage(w, http.StatusInternalServerError, "Failed to start consent flow")
		return
	}

	log.Info().
		Str("tenant_id", tenantID).
		Str("user_id", verdict.UserID).
		Msg("consent flow started")
	s.metrics.ConsentStartedTotal.Add(ctx, 1)

	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// handleConsentCallback completes the handshake when the consent endpoint
// redirects back. The outcome is reported as JSON; the nonce cookie is always
// cleared, so a replayed callback can never be granted.
func (s *Server) handleConsentCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := zerolog.Ctx(ctx)

	h := consent.ResumeHandshake(s.consent, &cookieNonceStore{w: w, r: r})

	err := h.HandleReturn(r.URL.Query())
	switch {
	case err == nil:
		log.Info().Str("tenant_id", h.TenantID()).Msg("admin consent granted")
		s.metrics.ConsentGrantedTotal.Add(ctx, 1)
		writeJSON(w, http.StatusOK, map[string]string{
			"status":   "granted",
			"tenantId": h.TenantID(),
		})

	case errors.Is(err, consent.ErrConsentDenied):
		log.Warn().Msg("admin consent denied")
		s.metrics.ConsentDeniedTotal.Add(ctx, 1)
		writeJSON(w, http.StatusOK, map[string]string{"status": "denied"})

	default:
		log.Warn().Err(err).Msg("admin consent failed")
		s.metrics.ConsentFailedTotal.Add(ctx, 1)
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "failed"})
	}
}
