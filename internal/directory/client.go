package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/oakensoft/tenantgate/internal/authz"
	"github.com/oakensoft/tenantgate/internal/models"
)

// DefaultBaseURL is the directory API root the client targets by default.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

// Config holds directory client configuration. Token acquisition is delegated
// to the oauth2 client-credentials flow; the service's own credential is
// injected configuration, never a source constant.
type Config struct {
	// BaseURL is the directory API root. Defaults to DefaultBaseURL.
	BaseURL string

	// TokenURL is the token endpoint for the client-credentials grant,
	// e.g. https://login.microsoftonline.com/{tenant}/oauth2/v2.0/token.
	TokenURL string

	// ClientID and ClientSecret identify the service principal used to query
	// role assignments. When ClientID is empty no token source is attached
	// and HTTPClient is used as-is (tests, ambient credentials).
	ClientID     string
	ClientSecret string

	// Scopes requested for the credential. Defaults to the directory API's
	// .default scope.
	Scopes []string

	// HTTPClient is the underlying transport. Retry policy belongs here, not
	// in the callers (see internal/client). Defaults to a plain client with
	// a 10 second timeout.
	HTTPClient *http.Client
}

// Client queries transitive directory role assignments. Results are never
// cached: every admin check must observe roles rescinded since the last one.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a directory client from the given configuration.
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	if cfg.ClientID != "" {
		scopes := cfg.Scopes
		if len(scopes) == 0 {
			scopes = []string{"https://graph.microsoft.com/.default"}
		}

		creds := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       scopes,
		}

		// Route the oauth2 token exchange and the API calls through the
		// configured base transport.
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		httpClient = creds.Client(ctx)
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// rolePage is one page of the directory's role listing response.
type rolePage struct {
	Value    []models.DirectoryRole `json:"value"`
	NextLink string                 `json:"@odata.nextLink"`
}

// ListTransitiveDirectoryRoles returns the directory roles the user holds,
// directly or via group membership, selecting only the identifier and display
// name fields. 401/403 from the directory map to authz.ErrBackendDenied (the
// service credential lacks permission); anything else that prevents a complete
// answer maps to authz.ErrBackendUnavailable.
func (c *Client) ListTransitiveDirectoryRoles(ctx context.Context, userID string) ([]models.DirectoryRole, error) {
	log := zerolog.Ctx(ctx)

	next := fmt.Sprintf("%s/users/%s/transitiveMemberOf/microsoft.graph.directoryRole?$select=%s",
		c.baseURL, url.PathEscape(userID), url.QueryEscape("roleTemplateId,displayName"))

	var roles []models.DirectoryRole
	for next != "" {
		page, err := c.fetchPage(ctx, next)
		if err != nil {
			return nil, err
		}
		roles = append(roles, page.Value...)
		next = page.NextLink
	}

	log.Debug().Str("user_id", userID).Int("roles", len(roles)).Msg("listed transitive directory roles")

	return roles, nil
}

func (c *Client) fetchPage(ctx context.Context, pageURL string) (*rolePage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", authz.ErrBackendUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", authz.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: directory returned %s", authz.ErrBackendDenied, resp.Status)
	default:
		return nil, fmt.Errorf("%w: directory returned %s", authz.ErrBackendUnavailable, resp.Status)
	}

	var page rolePage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("%w: decoding role listing: %v", authz.ErrBackendUnavailable, err)
	}

	return &page, nil
}
