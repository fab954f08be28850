package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	httpx "github.com/oakensoft/tenantgate/internal/http"
	"github.com/oakensoft/tenantgate/internal/models"
	"github.com/oakensoft/tenantgate/internal/store"
	"github.com/rs/zerolog"
)

// saveConfigRequest is the onboarding configuration submission body.
type saveConfigRequest struct {
	TenantID       string   `json:"tenantId"`
	SharePointURLs []string `json:"sharepointUrls"`
}

// tenantConfigResponse is the JSON shape of a stored tenant configuration.
type tenantConfigResponse struct {
	TenantID       string   `json:"tenantId"`
	SharePointURLs []string `json:"sharepointUrls"`
	RevisionID     string   `json:"revisionId"`
	CreatedAt      string   `json:"createdAt"`
	UpdatedAt      string   `json:"updatedAt"`
}

func newTenantConfigResponse(cfg *models.TenantConfig) tenantConfigResponse {
	return tenantConfigResponse{
		TenantID:       cfg.TenantID,
		SharePointURLs: cfg.SharePointURLs,
		RevisionID:     cfg.RevisionID.String(),
		CreatedAt:      cfg.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      cfg.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// handleSaveConfig persists the tenant's SharePoint URL list, replacing any
// previous revision.
func (s *Server) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := zerolog.Ctx(ctx)

	httpx.SetNoStore(w)

	var req saveConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	saved, err := s.configs.SaveConfig(ctx, req.TenantID, req.SharePointURLs)
	if err != nil {
		s.metrics.ConfigSaveErrorsTotal.Add(ctx, 1)

		if errors.Is(err, store.ErrInvalidTenantID) || errors.Is(err, store.ErrEmptyURLList) {
			writeMessage(w, http.StatusBadRequest, err.Error())
			return
		}

		log.Error().Err(err).
			Str("tenant_id", req.TenantID).
			Msg("failed to save tenant config")
		writeMessage(w, http.StatusInternalServerError, "Failed to save configuration")
		return
	}

	log.Info().
		Str("tenant_id", saved.TenantID).
		Str("revision_id", saved.RevisionID.String()).
		Int("url_count", len(saved.SharePointURLs)).
		Msg("tenant config saved")
	s.metrics.ConfigSavesTotal.Add(ctx, 1)

	writeJSON(w, http.StatusOK, newTenantConfigResponse(saved))
}

// handleGetConfig returns the stored configuration for a tenant.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := zerolog.Ctx(ctx)

	httpx.SetNoStore(w)

	tenantID := r.URL.Query().Get("tenantId")
	if tenantID == "" {
		writeMessage(w, http.StatusBadRequest, "tenantId is required")
		return
	}

	cfg, err := s.configs.GetConfig(ctx, tenantID)
	if err != nil {
		if errors.Is(err, store.ErrConfigNotFound) {
			writeMessage(w, http.StatusNotFound, "No configuration for tenant")
			return
		}

		log.Error().Err(err).
			Str("tenant_id", tenantID).
			Msg("failed to load tenant config")
		writeMessage(w, http.StatusInternalServerError, "Failed to load configuration")
		return
	}

	writeJSON(w, http.StatusOK, newTenantConfigResponse(cfg))
}
