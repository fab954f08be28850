package consent

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

// State is the handshake's position in the consent/configuration flow.
type State string

const (
	StateAwaitingAdminCheck State = "awaiting_admin_check"
	StateAwaitingConsent    State = "awaiting_consent"
	StateConsentGranted     State = "consent_granted"
	StateConsentDenied      State = "consent_denied"
	StateConsentFailed      State = "consent_failed"
	StateConfigSubmitted    State = "config_submitted"
)

var (
	// ErrInvalidTransition indicates an operation was attempted from a state
	// that does not permit it.
	ErrInvalidTransition = errors.New("invalid handshake transition")

	// ErrConsentDenied indicates the consent endpoint returned an error
	// parameter: the administrator declined, or the request was rejected.
	// Recoverable by retrying the redirect.
	ErrConsentDenied = errors.New("consent denied")

	// ErrConsentFailed indicates the consent return could not be validated
	// (missing fields, absent or mismatched nonce). Recoverable by retrying
	// the redirect; never transitions to granted.
	ErrConsentFailed = errors.New("consent return rejected")

	// ErrConfigValidation indicates the submitted configuration failed local
	// validation; no network call was made.
	ErrConfigValidation = errors.New("configuration validation failed")
)

// Endpoint describes the external admin-consent redirect target.
type Endpoint struct {
	// AuthorityBase is the consent authority root,
	// e.g. https://login.microsoftonline.com.
	AuthorityBase string

	// ClientID is the application requesting consent.
	ClientID string

	// Scope is the permission scope consent is requested for.
	Scope string

	// RedirectURI is where the consent endpoint returns the browser to.
	RedirectURI string
}

// ConsentURL builds the redirect URL for the given tenant and nonce.
func (e Endpoint) ConsentURL(tenantID, nonce string) string {
	tenant := tenantID
	if tenant == "" {
		tenant = "common"
	}

	params := url.Values{}
	params.Set("client_id", e.ClientID)
	params.Set("scope", e.Scope)
	params.Set("redirect_uri", e.RedirectURI)
	params.Set("state", nonce)

	return fmt.Sprintf("%s/%s/v2.0/adminconsent?%s",
		strings.TrimSuffix(e.AuthorityBase, "/"), url.PathEscape(tenant), params.Encode())
}

// ConfigSubmitter persists the tenant configuration once consent is granted.
// It is an external collaborator; the handshake only validates locally.
type ConfigSubmitter interface {
	SubmitConfig(ctx context.Context, tenantID string, sharepointURLs []string) error
}

// Handshake drives the consent and configuration flow for one session. All
// flow state is carried explicitly here and in the NonceStore; there are no
// package-level variables. The handshake is not resumable across loss of the
// nonce store: a cleared store forces a failed consent return.
type Handshake struct {
	state    State
	tenantID string
	endpoint Endpoint
	nonces   NonceStore
}

// NewHandshake creates a handshake in StateAwaitingAdminCheck.
func NewHandshake(endpoint Endpoint, nonces NonceStore) *Handshake {
	return &Handshake{
		state:    StateAwaitingAdminCheck,
		endpoint: endpoint,
		nonces:   nonces,
	}
}

// ResumeHandshake creates a handshake positioned to validate a consent
// return, for the fresh execution context after the redirect round trip.
func ResumeHandshake(endpoint Endpoint, nonces NonceStore) *Handshake {
	return &Handshake{
		state:    StateAwaitingConsent,
		endpoint: endpoint,
		nonces:   nonces,
	}
}

// State returns the current handshake state.
func (h *Handshake) State() State {
	return h.state
}

// TenantID returns the tenant the handshake is operating on. It is set by a
// positive admin check and overwritten by the tenant confirmed in the consent
// return.
func (h *Handshake) TenantID() string {
	return h.tenantID
}

// AdminConfirmed records a positive admin verdict for the given tenant and
// reveals the consent step. Only a true verdict advances the handshake; the
// admin check itself happens elsewhere (see internal/authz).
func (h *Handshake) AdminConfirmed(tenantID string) error {
	if h.state != StateAwaitingAdminCheck {
		return fmt.Errorf("%w: admin check confirmed in state %s", ErrInvalidTransition, h.state)
	}

	h.tenantID = tenantID
	h.state = StateAwaitingConsent
	return nil
}

// Begin starts the consent redirect: it generates a fresh nonce, persists
// {nonce, tenantID} in the session-scoped store, and returns the consent URL
// to navigate to. The navigation itself is terminal for this execution
// context; validation of the return happens in HandleReturn.
func (h *Handshake) Begin() (string, error) {
	if h.state != StateAwaitingConsent {
		return "", fmt.Errorf("%w: consent begun in state %s", ErrInvalidTransition, h.state)
	}

	nonce, err := NewNonce()
	if err != nil {
		return "", err
	}

	if err := h.nonces.Save(nonce, h.tenantID); err != nil {
		return "", fmt.Errorf("failed to persist consent nonce: %w", err)
	}

	return h.endpoint.ConsentURL(h.tenantID, nonce), nil
}

// HandleReturn validates the query parameters of the consent return.
//
// The stored nonce is always consumed, whatever the outcome. The transition
// to StateConsentGranted requires all of: no error parameter, admin_consent
// equal to "True", a tenant parameter, and a state parameter byte-identical
// to the stored nonce. Anything else is a denied or failed consent; a forged
// or replayed return can never reach the granted state.
func (h *Handshake) HandleReturn(query url.Values) error {
	if h.state != StateAwaitingConsent {
		return fmt.Errorf("%w: consent return in state %s", ErrInvalidTransition, h.state)
	}

	// Single use: clear the nonce before any validation verdict.
	nonce, pendingTenant, hadNonce := h.nonces.Take()

	if errParam := query.Get("error"); errParam != "" {
		h.state = StateConsentDenied
		log.Warn().
			Str("error", errParam).
			Str("error_description", query.Get("error_description")).
			Msg("consent denied by endpoint")
		return fmt.Errorf("%w: %s", ErrConsentDenied, errParam)
	}

	returnedState := query.Get("state")
	tenant := query.Get("tenant")

	switch {
	case !hadNonce:
		h.state = StateConsentFailed
		return fmt.Errorf("%w: no pending consent nonce", ErrConsentFailed)
	case returnedState == "" || returnedState != nonce:
		h.state = StateConsentFailed
		log.Warn().Msg("consent return state does not match pending nonce")
		return fmt.Errorf("%w: state mismatch", ErrConsentFailed)
	case query.Get("admin_consent") != "True":
		h.state = StateConsentFailed
		return fmt.Errorf("%w: admin_consent not granted", ErrConsentFailed)
	case tenant == "":
		h.state = StateConsentFailed
		return fmt.Errorf("%w: missing tenant", ErrConsentFailed)
	}

	// The tenant confirmed by the consent endpoint wins over the pending one.
	if pendingTenant != "" && pendingTenant != tenant {
		log.Warn().
			Str("pending_tenant", pendingTenant).
			Str("returned_tenant", tenant).
			Msg("consent granted for a different tenant than requested")
	}
	h.tenantID = tenant
	h.state = StateConsentGranted
	return nil
}

// Retry re-arms the consent step after a denied or failed return.
func (h *Handshake) Retry() error {
	if h.state != StateConsentDenied && h.state != StateConsentFailed {
		return fmt.Errorf("%w: retry in state %s", ErrInvalidTransition, h.state)
	}

	h.state = StateAwaitingConsent
	return nil
}

// SubmitConfig validates the newline-separated URL list locally and, when
// valid, hands it to the submitter. Empty input or a missing tenant blocks
// submission before any network call.
func (h *Handshake) SubmitConfig(ctx context.Context, rawURLList string, submitter ConfigSubmitter) error {
	if h.state != StateConsentGranted {
		return fmt.Errorf("%w: config submitted in state %s", ErrInvalidTransition, h.state)
	}

	urls := ParseURLList(rawURLList)
	if len(urls) == 0 {
		return fmt.Errorf("%w: no URLs provided", ErrConfigValidation)
	}
	if h.tenantID == "" {
		return fmt.Errorf("%w: tenant unknown", ErrConfigValidation)
	}

	if err := submitter.SubmitConfig(ctx, h.tenantID, urls); err != nil {
		return fmt.Errorf("failed to submit configuration: %w", err)
	}

	h.state = StateConfigSubmitted
	return nil
}

// ParseURLList splits a newline-separated URL list, trimming whitespace and
// dropping empty lines.
func ParseURLList(raw string) []string {
	var urls []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		urls = append(urls, line)
	}
	return urls
}
