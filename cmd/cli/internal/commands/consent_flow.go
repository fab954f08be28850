package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/oakensoft/tenantgate/internal/consent"
)

// ConsentCmd walks an operator through the admin consent handshake: it
// confirms the user is a tenant administrator, prints the consent URL,
// validates the pasted return URL against the pending nonce, and submits the
// SharePoint configuration once consent is granted.
type ConsentCmd struct {
	Server      string `help:"Server URL" default:"https://localhost:8443"`
	UserID      string `arg:"" help:"Directory object ID of the consenting administrator"`
	TenantID    string `help:"Tenant ID to onboard" default:""`
	Authority   string `help:"Consent authority base URL" default:"https://login.microsoftonline.com"`
	ClientID    string `help:"Application client ID presented for admin consent" required:""`
	Scope       string `help:"Scope requested during admin consent" default:"https://graph.microsoft.com/.default"`
	RedirectURI string `help:"Redirect URI registered for the consent return" required:""`
}

// remoteSubmitter persists the configuration through the server's saveConfig
// endpoint.
type remoteSubmitter struct {
	api *apiClient
}

func (r *remoteSubmitter) SubmitConfig(ctx context.Context, tenantID string, sharepointURLs []string) error {
	body := map[string]any{
		"tenantId":       tenantID,
		"sharepointUrls": sharepointURLs,
	}
	return r.api.doJSON(ctx, http.MethodPost, "/api/saveConfig", "", body, nil)
}

func (c *ConsentCmd) Run(ctx context.Context, globals *Globals) error {
	api := newAPIClient(c.Server)

	assertion, err := encodeAssertion(c.UserID, c.TenantID, "")
	if err != nil {
		return err
	}

	var status adminStatus
	if err := api.doJSON(ctx, http.MethodGet, "/api/checkAdminStatus", assertion, nil, &status); err != nil {
		return fmt.Errorf("admin check failed: %w", err)
	}
	if !status.IsAdmin {
		return fmt.Errorf("user %s is not a tenant administrator; consent cannot proceed", c.UserID)
	}

	tenantID := c.TenantID
	if tenantID == "" {
		tenantID = status.CheckedTenantID
	}

	endpoint := consent.Endpoint{
		AuthorityBase: c.Authority,
		ClientID:      c.ClientID,
		Scope:         c.Scope,
		RedirectURI:   c.RedirectURI,
	}

	handshake := consent.NewHandshake(endpoint, consent.NewMemoryNonceStore())
	if err := handshake.AdminConfirmed(tenantID); err != nil {
		return err
	}

	reader := bufio.NewReader(os.Stdin)

	for {
		consentURL, err := handshake.Begin()
		if err != nil {
			return err
		}

		fmt.Printf("\nOpen the following URL in a browser and complete the consent prompt:\n\n  %s\n\n", consentURL)
		fmt.Print("Paste the full redirect URL you were returned to: ")

		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read redirect URL: %w", err)
		}

		returned, err := url.Parse(strings.TrimSpace(line))
		if err != nil {
			return fmt.Errorf("invalid redirect URL: %w", err)
		}

		err = handshake.HandleReturn(returned.Query())
		if err == nil {
			break
		}

		if errors.Is(err, consent.ErrConsentDenied) {
			fmt.Println("Consent was denied by the administrator.")
		} else {
			fmt.Printf("Consent failed: %v\n", err)
		}

		fmt.Print("Retry the consent prompt? [y/N]: ")
		answer, readErr := reader.ReadString('\n')
		if readErr != nil || !strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "y") {
			return err
		}

		if err := handshake.Retry(); err != nil {
			return err
		}
	}

	fmt.Printf("Consent granted for tenant %s.\n\n", handshake.TenantID())
	fmt.Println("Enter the SharePoint site URLs to register, one per line (blank line to finish):")

	var lines []string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		if strings.TrimSpace(line) == "" {
			break
		}
		lines = append(lines, line)
	}

	err = handshake.SubmitConfig(ctx, strings.Join(lines, "\n"), &remoteSubmitter{api: api})
	if err != nil {
		if errors.Is(err, consent.ErrConfigValidation) {
			return fmt.Errorf("no valid SharePoint URLs were entered: %w", err)
		}
		return fmt.Errorf("failed to submit configuration: %w", err)
	}

	fmt.Printf("Configuration saved for tenant %s.\n", handshake.TenantID())
	return nil
}
