package client

import (
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
)

// retryingTransport retries idempotent requests on transport errors and
// 5xx responses with exponential backoff. Retry policy lives here, in the
// HTTP client, so callers such as the admin decision engine stay a single
// awaited call with no retry logic of their own.
type retryingTransport struct {
	base     http.RoundTripper
	maxTries uint
}

func (t *retryingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return t.base.RoundTrip(req)
	}

	operation := func() (*http.Response, error) {
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			log.Debug().Err(err).Str("url", req.URL.String()).Msg("request failed, will retry")
			return nil, err
		}

		if resp.StatusCode >= http.StatusInternalServerError {
			resp.Body.Close()
			return nil, fmt.Errorf("server error: %s", resp.Status)
		}

		return resp, nil
	}

	resp, err := backoff.Retry(req.Context(), operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(t.maxTries),
		backoff.WithMaxElapsedTime(30*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// NewRetryingHTTPClient creates an HTTP client that retries GET/HEAD requests
// up to maxTries times on transport errors and 5xx responses.
func NewRetryingHTTPClient(timeout time.Duration, maxTries uint) *http.Client {
	if maxTries == 0 {
		maxTries = 3
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &retryingTransport{
			base:     http.DefaultTransport,
			maxTries: maxTries,
		},
	}
}
