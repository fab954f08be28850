package principal

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://login.test/v2.0"
	testAudience = "tenantgate-api"
	testKid      = "kid-1"
)

func newJWKSServer(t *testing.T, pub *ecdsa.PublicKey) *httptest.Server {
	t.Helper()

	doc := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "EC",
				"crv": "P-256",
				"kid": testKid,
				"x":   base64.RawURLEncoding.EncodeToString(pub.X.Bytes()),
				"y":   base64.RawURLEncoding.EncodeToString(pub.Y.Bytes()),
			},
		},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(doc))
	}))
	t.Cleanup(server.Close)
	return server
}

func signIdentityToken(t *testing.T, key *ecdsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = testKid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func baseClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":                testIssuer,
		"aud":                testAudience,
		"oid":                "user-1",
		"tid":                "tenant-1",
		"name":               "Jane Doe",
		"preferred_username": "jane@contoso.example",
		"iat":                now.Unix(),
		"exp":                now.Add(5 * time.Minute).Unix(),
	}
}

func TestTokenExtractor_ValidToken(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	jwksServer := newJWKSServer(t, &key.PublicKey)
	extractor := NewTokenExtractor(testIssuer, testAudience, NewJWKSCache(jwksServer.URL, nil))

	p, err := extractor.ExtractPrincipal(context.Background(), signIdentityToken(t, key, baseClaims()))
	require.NoError(t, err)
	require.Equal(t, "user-1", p.UserID)
	require.Equal(t, "tenant-1", p.TenantID)
	require.Equal(t, "Jane Doe", p.DisplayName)
}

func TestTokenExtractor_FallsBackToPreferredUsername(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	jwksServer := newJWKSServer(t, &key.PublicKey)
	extractor := NewTokenExtractor(testIssuer, testAudience, NewJWKSCache(jwksServer.URL, nil))

	claims := baseClaims()
	delete(claims, "name")

	p, err := extractor.ExtractPrincipal(context.Background(), signIdentityToken(t, key, claims))
	require.NoError(t, err)
	require.Equal(t, "jane@contoso.example", p.DisplayName)
}

func TestTokenExtractor_Failures(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	otherKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	jwksServer := newJWKSServer(t, &key.PublicKey)
	extractor := NewTokenExtractor(testIssuer, testAudience, NewJWKSCache(jwksServer.URL, nil))

	tests := []struct {
		name    string
		token   func(t *testing.T) string
		wantErr error
	}{
		{
			name:    "empty token",
			token:   func(t *testing.T) string { return "" },
			wantErr: ErrBadAssertion,
		},
		{
			name:    "garbage token",
			token:   func(t *testing.T) string { return "not.a.jwt" },
			wantErr: ErrBadAssertion,
		},
		{
			name: "wrong signing key",
			token: func(t *testing.T) string {
				return signIdentityToken(t, otherKey, baseClaims())
			},
			wantErr: ErrBadAssertion,
		},
		{
			name: "wrong issuer",
			token: func(t *testing.T) string {
				claims := baseClaims()
				claims["iss"] = "https://evil.test"
				return signIdentityToken(t, key, claims)
			},
			wantErr: ErrBadAssertion,
		},
		{
			name: "wrong audience",
			token: func(t *testing.T) string {
				claims := baseClaims()
				claims["aud"] = "another-api"
				return signIdentityToken(t, key, claims)
			},
			wantErr: ErrBadAssertion,
		},
		{
			name: "expired",
			token: func(t *testing.T) string {
				claims := baseClaims()
				claims["exp"] = time.Now().Add(-1 * time.Minute).Unix()
				return signIdentityToken(t, key, claims)
			},
			wantErr: ErrBadAssertion,
		},
		{
			name: "missing oid",
			token: func(t *testing.T) string {
				claims := baseClaims()
				delete(claims, "oid")
				return signIdentityToken(t, key, claims)
			},
			wantErr: ErrMissingIdentity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := extractor.ExtractPrincipal(context.Background(), tt.token(t))
			require.Nil(t, p)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}
