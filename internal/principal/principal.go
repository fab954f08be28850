package principal

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

var (
	// ErrBadAssertion indicates the identity assertion could not be decoded
	// (malformed encoding, invalid structure, failed token verification).
	ErrBadAssertion = errors.New("bad identity assertion")

	// ErrMissingIdentity indicates the assertion decoded but carries no usable
	// user identifier. This maps to unauthorized, never to a non-admin verdict.
	ErrMissingIdentity = errors.New("missing user identity")
)

// Principal is the normalized identity extracted from an inbound assertion.
//
// ClaimedRoles is whatever role list the assertion carried. It is untrusted
// input: it is never consulted for authorization decisions, which are always
// re-derived from the directory (see internal/authz).
type Principal struct {
	UserID       string
	TenantID     string
	DisplayName  string
	ClaimedRoles []string
}

// clientPrincipalEnvelope is the JSON object carried base64-encoded in the
// gateway's identity header (x-ms-client-principal).
type clientPrincipalEnvelope struct {
	UserID      string   `json:"userId"`
	TenantID    string   `json:"tenantId"`
	UserDetails string   `json:"userDetails"`
	UserRoles   []string `json:"userRoles"`
}

// ExtractPrincipal decodes a platform-injected identity assertion into a
// Principal. The assertion is a base64-encoded JSON envelope. Any decoding
// failure returns ErrBadAssertion; a decoded envelope without a userId returns
// ErrMissingIdentity. Callers must treat both as unauthorized and must never
// fall back to a default identity.
func ExtractPrincipal(rawAssertion string) (*Principal, error) {
	if rawAssertion == "" {
		return nil, fmt.Errorf("%w: empty assertion", ErrBadAssertion)
	}

	decoded, err := base64.StdEncoding.DecodeString(rawAssertion)
	if err != nil {
		// The gateway is known to emit unpadded base64 in some environments.
		decoded, err = base64.RawStdEncoding.DecodeString(rawAssertion)
		if err != nil {
			log.Debug().Err(err).Msg("assertion base64 decode failed")
			return nil, fmt.Errorf("%w: invalid base64", ErrBadAssertion)
		}
	}

	var envelope clientPrincipalEnvelope
	if err := json.Unmarshal(decoded, &envelope); err != nil {
		log.Debug().Err(err).Msg("assertion JSON decode failed")
		return nil, fmt.Errorf("%w: invalid JSON envelope", ErrBadAssertion)
	}

	if envelope.UserID == "" {
		return nil, ErrMissingIdentity
	}

	return &Principal{
		UserID:       envelope.UserID,
		TenantID:     envelope.TenantID,
		DisplayName:  envelope.UserDetails,
		ClaimedRoles: envelope.UserRoles,
	}, nil
}
