package commands

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

type SaveConfigCmd struct {
	Server         string   `help:"Server URL" default:"https://localhost:8443"`
	TenantID       string   `arg:"" help:"Tenant ID to configure"`
	SharePointURLs []string `arg:"" help:"SharePoint site URLs to register"`
}

type GetConfigCmd struct {
	Server   string `help:"Server URL" default:"https://localhost:8443"`
	TenantID string `arg:"" help:"Tenant ID to look up"`
}

type tenantConfig struct {
	TenantID       string   `json:"tenantId"`
	SharePointURLs []string `json:"sharepointUrls"`
	RevisionID     string   `json:"revisionId"`
	CreatedAt      string   `json:"createdAt"`
	UpdatedAt      string   `json:"updatedAt"`
}

func (c *SaveConfigCmd) Run(ctx context.Context, globals *Globals) error {
	body := map[string]any{
		"tenantId":       c.TenantID,
		"sharepointUrls": c.SharePointURLs,
	}

	var saved tenantConfig
	api := newAPIClient(c.Server)
	if err := api.doJSON(ctx, http.MethodPost, "/api/saveConfig", "", body, &saved); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Printf("Saved configuration for tenant %s (revision %s)\n", saved.TenantID, saved.RevisionID)
	return nil
}

func (c *GetConfigCmd) Run(ctx context.Context, globals *Globals) error {
	var cfg tenantConfig
	api := newAPIClient(c.Server)
	path := "/api/getConfig?tenantId=" + url.QueryEscape(c.TenantID)
	if err := api.doJSON(ctx, http.MethodGet, path, "", nil, &cfg); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	fmt.Printf("Tenant:   %s\n", cfg.TenantID)
	fmt.Printf("Revision: %s\n", cfg.RevisionID)
	fmt.Printf("Updated:  %s\n", cfg.UpdatedAt)
	fmt.Println("SharePoint URLs:")
	for _, u := range cfg.SharePointURLs {
		fmt.Printf("  - %s\n", u)
	}

	return nil
}
