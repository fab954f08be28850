package principal

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func encodeEnvelope(t *testing.T, payload string) string {
	t.Helper()
	return base64.StdEncoding.EncodeToString([]byte(payload))
}

func TestExtractPrincipal(t *testing.T) {
	raw := encodeEnvelope(t, `{
		"userId": "a1b2c3",
		"tenantId": "t-100",
		"userDetails": "jane@contoso.example",
		"userRoles": ["authenticated", "admin"]
	}`)

	p, err := ExtractPrincipal(raw)
	require.NoError(t, err)
	require.Equal(t, "a1b2c3", p.UserID)
	require.Equal(t, "t-100", p.TenantID)
	require.Equal(t, "jane@contoso.example", p.DisplayName)
	require.Equal(t, []string{"authenticated", "admin"}, p.ClaimedRoles)
}

func TestExtractPrincipal_UnpaddedBase64(t *testing.T) {
	raw := base64.RawStdEncoding.EncodeToString([]byte(`{"userId":"u1"}`))

	p, err := ExtractPrincipal(raw)
	require.NoError(t, err)
	require.Equal(t, "u1", p.UserID)
}

func TestExtractPrincipal_MinimalEnvelope(t *testing.T) {
	p, err := ExtractPrincipal(encodeEnvelope(t, `{"userId":"u2"}`))
	require.NoError(t, err)
	require.Equal(t, "u2", p.UserID)
	require.Empty(t, p.TenantID)
	require.Empty(t, p.DisplayName)
	require.Empty(t, p.ClaimedRoles)
}

func TestExtractPrincipal_Failures(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{
			name:    "empty assertion",
			raw:     "",
			wantErr: ErrBadAssertion,
		},
		{
			name:    "not base64",
			raw:     "!!not-base64!!",
			wantErr: ErrBadAssertion,
		},
		{
			name:    "not JSON",
			raw:     base64.StdEncoding.EncodeToString([]byte("hello world")),
			wantErr: ErrBadAssertion,
		},
		{
			name:    "wrong JSON shape",
			raw:     base64.StdEncoding.EncodeToString([]byte(`["a","b"]`)),
			wantErr: ErrBadAssertion,
		},
		{
			name:    "missing userId",
			raw:     base64.StdEncoding.EncodeToString([]byte(`{"userDetails":"jane@contoso.example"}`)),
			wantErr: ErrMissingIdentity,
		},
		{
			name:    "empty userId",
			raw:     base64.StdEncoding.EncodeToString([]byte(`{"userId":""}`)),
			wantErr: ErrMissingIdentity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ExtractPrincipal(tt.raw)
			require.Nil(t, p)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}
