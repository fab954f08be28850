package commands

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

type CheckAdminCmd struct {
	Server      string `help:"Server URL" default:"https://localhost:8443"`
	UserID      string `arg:"" help:"Directory object ID of the user to check"`
	TenantID    string `help:"Tenant ID of the user" default:""`
	DisplayName string `help:"Display name carried in the assertion" default:""`
}

type adminStatus struct {
	IsAdmin         bool   `json:"isAdmin"`
	CheckedUserID   string `json:"checkedUserId"`
	CheckedTenantID string `json:"checkedTenantId"`
}

func (c *CheckAdminCmd) Run(ctx context.Context, globals *Globals) error {
	assertion, err := encodeAssertion(c.UserID, c.TenantID, c.DisplayName)
	if err != nil {
		return err
	}

	path := "/api/checkAdminStatus"
	if c.TenantID != "" {
		path += "?tenantId=" + url.QueryEscape(c.TenantID)
	}

	var status adminStatus
	api := newAPIClient(c.Server)
	if err := api.doJSON(ctx, http.MethodGet, path, assertion, nil, &status); err != nil {
		return fmt.Errorf("admin check failed: %w", err)
	}

	if status.IsAdmin {
		fmt.Printf("User %s is a tenant administrator of %s\n", status.CheckedUserID, status.CheckedTenantID)
	} else {
		fmt.Printf("User %s is NOT a tenant administrator\n", status.CheckedUserID)
	}

	return nil
}
