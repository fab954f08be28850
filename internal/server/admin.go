package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	httpx "github.com/oakensoft/tenantgate/internal/http"
	"github.com/oakensoft/tenantgate/internal/principal"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// adminStatusResponse is the verdict body for checkAdminStatus.
type adminStatusResponse struct {
	IsAdmin         bool   `json:"isAdmin"`
	CheckedUserID   string `json:"checkedUserId,omitempty"`
	CheckedTenantID string `json:"checkedTenantId,omitempty"`
}

// handleCheckAdminStatus decides whether the caller is a tenant administrator.
// A failed directory lookup withholds the verdict entirely rather than
// reporting a non-admin result.
func (s *Server) handleCheckAdminStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := zerolog.Ctx(ctx)
	started := time.Now()

	httpx.SetNoStore(w)
	s.metrics.AdminChecksTotal.Add(ctx, 1)

	p, err := s.extractPrincipal(r)
	if err != nil {
		log.Warn().Err(err).Msg("rejecting admin check without a usable identity")
		s.metrics.AdminCheckErrorsTotal.Add(ctx, 1,
			metric.WithAttributes(attribute.String("reason", "identity")))
		writeMessage(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	// Query params may fill gaps left by the assertion, but never override it.
	if p.TenantID == "" {
		p.TenantID = r.URL.Query().Get("tenantId")
	}

	verdict, err := s.engine.DecideAdmin(ctx, p)
	if err != nil {
		if errors.Is(err, principal.ErrMissingIdentity) {
			writeMessage(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		log.Error().Err(err).
			Str("user_id", p.UserID).
			Msg("admin status could not be determined")
		s.metrics.RoleLookupFailuresTotal.Add(ctx, 1)
		s.metrics.AdminCheckErrorsTotal.Add(ctx, 1,
			metric.WithAttributes(attribute.String("reason", "backend")))
		writeMessage(w, http.StatusInternalServerError, "Admin status could not be determined")
		return
	}

	s.metrics.AdminVerdictsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.Bool("is_admin", verdict.IsAdmin)))
	s.metrics.AdminCheckDuration.Record(ctx, float64(time.Since(started).Milliseconds()))

	writeJSON(w, http.StatusOK, adminStatusResponse{
		IsAdmin:         verdict.IsAdmin,
		CheckedUserID:   verdict.UserID,
		CheckedTenantID: verdict.TenantID,
	})
}

// handleGetRoles is the legacy role-assignment endpoint. Any caller that
// presents a parseable assertion or claims body is assigned the
// "authenticated" role; no directory lookup happens here.
func (s *Server) handleGetRoles(w http.ResponseWriter, r *http.Request) {
	log := zerolog.Ctx(r.Context())

	httpx.SetNoStore(w)

	p, err := s.extractPrincipal(r)
	if err != nil {
		var claims map[string]any
		if decodeErr := json.NewDecoder(r.Body).Decode(&claims); decodeErr != nil || len(claims) == 0 {
			log.Warn().Err(err).Msg("rejecting role assignment without assertion or claims")
			writeMessage(w, http.StatusUnauthorized, "Authentication required")
			return
		}
	} else {
		log.Debug().
			Str("user_id", p.UserID).
			Strs("claimed_roles", p.ClaimedRoles).
			Msg("assigning authenticated role")
	}

	writeJSON(w, http.StatusOK, map[string][]string{"roles": {"authenticated"}})
}
