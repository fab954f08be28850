package principal

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// TokenExtractor is the alternative assertion path: a signed identity token
// whose claims are verified against the issuer's JWKS before extraction.
// Claims follow the identity provider's conventions: oid (object ID) is the
// user identifier, tid the tenant, name / preferred_username the display name.
type TokenExtractor struct {
	issuer   string
	audience string
	keys     *JWKSCache
}

// NewTokenExtractor creates a token extractor verifying tokens issued by
// issuer for audience, using keys from the given JWKS cache.
func NewTokenExtractor(issuer, audience string, keys *JWKSCache) *TokenExtractor {
	return &TokenExtractor{
		issuer:   issuer,
		audience: audience,
		keys:     keys,
	}
}

// identityClaims are the token claims the extractor consumes.
type identityClaims struct {
	jwt.RegisteredClaims
	ObjectID          string   `json:"oid"`
	TenantID          string   `json:"tid"`
	Name              string   `json:"name"`
	PreferredUsername string   `json:"preferred_username"`
	Roles             []string `json:"roles"`
}

// ExtractPrincipal verifies the signed identity token and maps its claims to a
// Principal. Verification failures return ErrBadAssertion; a verified token
// without an oid claim returns ErrMissingIdentity.
func (e *TokenExtractor) ExtractPrincipal(ctx context.Context, rawToken string) (*Principal, error) {
	if rawToken == "" {
		return nil, fmt.Errorf("%w: empty token", ErrBadAssertion)
	}

	claims := &identityClaims{}
	parsed, err := jwt.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (any, error) {
		switch t.Method.(type) {
		case *jwt.SigningMethodECDSA, *jwt.SigningMethodRSA:
		default:
			return nil, errors.New("invalid signing method")
		}

		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token missing kid header")
		}

		return e.keys.GetKey(ctx, kid)
	},
		jwt.WithIssuer(e.issuer),
		jwt.WithAudience(e.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		log.Debug().Err(err).Msg("identity token verification failed")
		return nil, fmt.Errorf("%w: %v", ErrBadAssertion, err)
	}

	if !parsed.Valid {
		return nil, fmt.Errorf("%w: token invalid", ErrBadAssertion)
	}

	if claims.ObjectID == "" {
		return nil, ErrMissingIdentity
	}

	displayName := claims.Name
	if displayName == "" {
		displayName = claims.PreferredUsername
	}

	return &Principal{
		UserID:       claims.ObjectID,
		TenantID:     claims.TenantID,
		DisplayName:  displayName,
		ClaimedRoles: claims.Roles,
	}, nil
}
