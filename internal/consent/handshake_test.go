package consent

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var testEndpoint = Endpoint{
	AuthorityBase: "https://login.test",
	ClientID:      "client-1",
	Scope:         "https://graph.test/.default",
	RedirectURI:   "https://app.test/onboarding",
}

// fakeSubmitter records the submitted configuration.
type fakeSubmitter struct {
	tenantID string
	urls     []string
	err      error
	calls    int
}

func (f *fakeSubmitter) SubmitConfig(ctx context.Context, tenantID string, urls []string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.tenantID = tenantID
	f.urls = urls
	return nil
}

// beginConsent advances a fresh handshake to the redirect and returns it with
// the nonce embedded in the consent URL.
func beginConsent(t *testing.T, store NonceStore) (*Handshake, string) {
	t.Helper()

	h := NewHandshake(testEndpoint, store)
	require.NoError(t, h.AdminConfirmed("tenant-1"))

	consentURL, err := h.Begin()
	require.NoError(t, err)

	parsed, err := url.Parse(consentURL)
	require.NoError(t, err)
	return h, parsed.Query().Get("state")
}

func TestHandshake_ConsentURL(t *testing.T) {
	h, nonce := beginConsent(t, NewMemoryNonceStore())
	require.Equal(t, StateAwaitingConsent, h.State())
	require.NotEmpty(t, nonce)

	consentURL := testEndpoint.ConsentURL("tenant-1", nonce)
	require.True(t, strings.HasPrefix(consentURL, "https://login.test/tenant-1/v2.0/adminconsent?"))

	parsed, err := url.Parse(consentURL)
	require.NoError(t, err)
	q := parsed.Query()
	require.Equal(t, "client-1", q.Get("client_id"))
	require.Equal(t, "https://graph.test/.default", q.Get("scope"))
	require.Equal(t, "https://app.test/onboarding", q.Get("redirect_uri"))
	require.Equal(t, nonce, q.Get("state"))
}

func TestHandshake_ConsentURL_DefaultsToCommon(t *testing.T) {
	consentURL := testEndpoint.ConsentURL("", "n")
	require.True(t, strings.HasPrefix(consentURL, "https://login.test/common/v2.0/adminconsent?"))
}

func TestHandshake_GrantedReturn(t *testing.T) {
	h, nonce := beginConsent(t, NewMemoryNonceStore())

	err := h.HandleReturn(url.Values{
		"admin_consent": {"True"},
		"tenant":        {"tenant-1"},
		"state":         {nonce},
	})
	require.NoError(t, err)
	require.Equal(t, StateConsentGranted, h.State())
	require.Equal(t, "tenant-1", h.TenantID())
}

func TestHandshake_StateMismatchNeverGrants(t *testing.T) {
	h, _ := beginConsent(t, NewMemoryNonceStore())

	// admin_consent is True, but the state does not match the stored nonce.
	err := h.HandleReturn(url.Values{
		"admin_consent": {"True"},
		"tenant":        {"tenant-1"},
		"state":         {"NONCE_Y"},
	})
	require.ErrorIs(t, err, ErrConsentFailed)
	require.Equal(t, StateConsentFailed, h.State())
}

func TestHandshake_NonceIsSingleUse(t *testing.T) {
	store := NewMemoryNonceStore()
	h, nonce := beginConsent(t, store)

	ret := url.Values{
		"admin_consent": {"True"},
		"tenant":        {"tenant-1"},
		"state":         {nonce},
	}
	require.NoError(t, h.HandleReturn(ret))

	// A replayed return, in a fresh context, finds no pending nonce.
	replay := ResumeHandshake(testEndpoint, store)
	err := replay.HandleReturn(ret)
	require.ErrorIs(t, err, ErrConsentFailed)
	require.Equal(t, StateConsentFailed, replay.State())
}

func TestHandshake_NonceClearedOnFailure(t *testing.T) {
	store := NewMemoryNonceStore()
	h, _ := beginConsent(t, store)

	err := h.HandleReturn(url.Values{
		"admin_consent": {"True"},
		"tenant":        {"tenant-1"},
		"state":         {"wrong"},
	})
	require.ErrorIs(t, err, ErrConsentFailed)

	// The real nonce was consumed by the failed attempt.
	_, _, ok := store.Take()
	require.False(t, ok)
}

func TestHandshake_LostNonceForcesFailure(t *testing.T) {
	store := NewMemoryNonceStore()
	h, nonce := beginConsent(t, store)

	// Session storage cleared mid-flow.
	_, _, ok := store.Take()
	require.True(t, ok)

	err := h.HandleReturn(url.Values{
		"admin_consent": {"True"},
		"tenant":        {"tenant-1"},
		"state":         {nonce},
	})
	require.ErrorIs(t, err, ErrConsentFailed)
	require.Equal(t, StateConsentFailed, h.State())
}

func TestHandshake_DeniedReturn(t *testing.T) {
	store := NewMemoryNonceStore()
	h, _ := beginConsent(t, store)

	err := h.HandleReturn(url.Values{
		"error":             {"access_denied"},
		"error_description": {"the administrator declined"},
	})
	require.ErrorIs(t, err, ErrConsentDenied)
	require.Equal(t, StateConsentDenied, h.State())

	// Nonce cleared on the denied branch too.
	_, _, ok := store.Take()
	require.False(t, ok)
}

func TestHandshake_IncompleteReturns(t *testing.T) {
	tests := []struct {
		name  string
		query func(nonce string) url.Values
	}{
		{
			name: "missing admin_consent",
			query: func(nonce string) url.Values {
				return url.Values{"tenant": {"tenant-1"}, "state": {nonce}}
			},
		},
		{
			name: "admin_consent false",
			query: func(nonce string) url.Values {
				return url.Values{"admin_consent": {"False"}, "tenant": {"tenant-1"}, "state": {nonce}}
			},
		},
		{
			name: "missing tenant",
			query: func(nonce string) url.Values {
				return url.Values{"admin_consent": {"True"}, "state": {nonce}}
			},
		},
		{
			name: "missing state",
			query: func(nonce string) url.Values {
				return url.Values{"admin_consent": {"True"}, "tenant": {"tenant-1"}}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, nonce := beginConsent(t, NewMemoryNonceStore())

			err := h.HandleReturn(tt.query(nonce))
			require.ErrorIs(t, err, ErrConsentFailed)
			require.Equal(t, StateConsentFailed, h.State())
		})
	}
}

func TestHandshake_RetryAfterFailure(t *testing.T) {
	store := NewMemoryNonceStore()
	h, _ := beginConsent(t, store)

	require.Error(t, h.HandleReturn(url.Values{"error": {"access_denied"}}))
	require.NoError(t, h.Retry())
	require.Equal(t, StateAwaitingConsent, h.State())

	// The retried redirect uses a fresh nonce.
	consentURL, err := h.Begin()
	require.NoError(t, err)
	parsed, err := url.Parse(consentURL)
	require.NoError(t, err)

	nonce := parsed.Query().Get("state")
	require.NoError(t, h.HandleReturn(url.Values{
		"admin_consent": {"True"},
		"tenant":        {"tenant-1"},
		"state":         {nonce},
	}))
	require.Equal(t, StateConsentGranted, h.State())
}

func TestHandshake_SubmitConfig(t *testing.T) {
	h, nonce := beginConsent(t, NewMemoryNonceStore())
	require.NoError(t, h.HandleReturn(url.Values{
		"admin_consent": {"True"},
		"tenant":        {"tenant-1"},
		"state":         {nonce},
	}))

	submitter := &fakeSubmitter{}
	err := h.SubmitConfig(context.Background(),
		"https://contoso.sharepoint.example/sites/a\n\n  https://contoso.sharepoint.example/sites/b  \n",
		submitter)
	require.NoError(t, err)
	require.Equal(t, StateConfigSubmitted, h.State())
	require.Equal(t, "tenant-1", submitter.tenantID)
	require.Equal(t, []string{
		"https://contoso.sharepoint.example/sites/a",
		"https://contoso.sharepoint.example/sites/b",
	}, submitter.urls)
}

func TestHandshake_SubmitConfig_ValidationBlocksLocally(t *testing.T) {
	h, nonce := beginConsent(t, NewMemoryNonceStore())
	require.NoError(t, h.HandleReturn(url.Values{
		"admin_consent": {"True"},
		"tenant":        {"tenant-1"},
		"state":         {nonce},
	}))

	submitter := &fakeSubmitter{}
	for _, raw := range []string{"", "\n\n", "   \n  "} {
		err := h.SubmitConfig(context.Background(), raw, submitter)
		require.ErrorIs(t, err, ErrConfigValidation)
	}

	// Validation failures never reach the submitter.
	require.Zero(t, submitter.calls)
	require.Equal(t, StateConsentGranted, h.State())
}

func TestHandshake_SubmitConfig_SubmitterFailureKeepsState(t *testing.T) {
	h, nonce := beginConsent(t, NewMemoryNonceStore())
	require.NoError(t, h.HandleReturn(url.Values{
		"admin_consent": {"True"},
		"tenant":        {"tenant-1"},
		"state":         {nonce},
	}))

	submitter := &fakeSubmitter{err: errors.New("persistence failed")}
	err := h.SubmitConfig(context.Background(), "https://contoso.sharepoint.example", submitter)
	require.Error(t, err)
	require.Equal(t, StateConsentGranted, h.State())
}

func TestHandshake_InvalidTransitions(t *testing.T) {
	h := NewHandshake(testEndpoint, NewMemoryNonceStore())

	// Consent cannot begin before a positive admin check.
	_, err := h.Begin()
	require.ErrorIs(t, err, ErrInvalidTransition)

	err = h.HandleReturn(url.Values{})
	require.ErrorIs(t, err, ErrInvalidTransition)

	err = h.SubmitConfig(context.Background(), "https://x.example", &fakeSubmitter{})
	require.ErrorIs(t, err, ErrInvalidTransition)

	require.ErrorIs(t, h.Retry(), ErrInvalidTransition)
}
