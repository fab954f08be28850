package commands

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/oakensoft/tenantgate/internal/client"
)

type Globals struct {
	Debug   bool
	Version string
}

// apiClient is a thin JSON client for the tenant gating server.
type apiClient struct {
	baseURL    string
	httpClient *http.Client
}

func newAPIClient(serverURL string) *apiClient {
	return &apiClient{
		baseURL:    strings.TrimRight(serverURL, "/"),
		httpClient: client.NewRetryingHTTPClient(30*time.Second, 3),
	}
}

// encodeAssertion builds the base64 JSON identity envelope the server expects
// in the x-ms-client-principal header.
func encodeAssertion(userID, tenantID, displayName string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"userId":      userID,
		"tenantId":    tenantID,
		"userDetails": displayName,
		"userRoles":   []string{"authenticated"},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode assertion: %w", err)
	}

	return base64.StdEncoding.EncodeToString(payload), nil
}

// doJSON performs a request and decodes the JSON response into out. Non-2xx
// responses are returned as errors carrying the server's message.
func (c *apiClient) doJSON(ctx context.Context, method, path, assertion string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if assertion != "" {
		req.Header.Set("x-ms-client-principal", assertion)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody struct {
			Message string `json:"message"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errBody); decodeErr == nil && errBody.Message != "" {
			return fmt.Errorf("server returned HTTP %d: %s", resp.StatusCode, errBody.Message)
		}
		return fmt.Errorf("server returned HTTP %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
