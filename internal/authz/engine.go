package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/oakensoft/tenantgate/internal/models"
	"github.com/oakensoft/tenantgate/internal/principal"
)

var (
	// ErrBackendUnavailable indicates the directory role lookup failed for
	// transport or credential reasons. The verdict is withheld; this must not
	// be reported as a non-admin result.
	ErrBackendUnavailable = errors.New("directory role lookup unavailable")

	// ErrBackendDenied indicates the engine's own credential lacks permission
	// to query role assignments. Also a withheld verdict, distinct from a
	// legitimate non-admin result.
	ErrBackendDenied = errors.New("directory role lookup denied")
)

// RoleLookup lists the directory roles a user holds, directly or inherited
// through group membership. Implementations report failures using the sentinel
// errors above.
type RoleLookup interface {
	ListTransitiveDirectoryRoles(ctx context.Context, userID string) ([]models.DirectoryRole, error)
}

// Verdict is the outcome of an admin check. It is derived per request and
// never persisted; a repeated check reflects roles rescinded in between.
type Verdict struct {
	IsAdmin  bool
	UserID   string
	TenantID string
}

// Engine decides whether a principal qualifies as tenant administrator by
// re-deriving role membership from an authoritative directory source. The
// claimed roles carried by the inbound assertion are deliberately ignored:
// they are client-supplied and forgeable.
type Engine struct {
	roles RoleLookup
	allow *AllowList
}

// NewEngine creates a decision engine using the given role source and
// allow-list.
func NewEngine(roles RoleLookup, allow *AllowList) *Engine {
	return &Engine{roles: roles, allow: allow}
}

// DecideAdmin returns the admin verdict for the principal.
//
// A principal without a user ID fails with principal.ErrMissingIdentity, which
// callers map to unauthorized rather than to a non-admin verdict. Lookup
// failures are surfaced as ErrBackendUnavailable or ErrBackendDenied so the
// caller can always distinguish "verified non-admin" from "verification
// failed". The engine holds no state and caches nothing across calls.
func (e *Engine) DecideAdmin(ctx context.Context, p *principal.Principal) (*Verdict, error) {
	if p == nil || p.UserID == "" {
		return nil, principal.ErrMissingIdentity
	}

	log := zerolog.Ctx(ctx)

	roles, err := e.roles.ListTransitiveDirectoryRoles(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("role lookup for user %s: %w", p.UserID, err)
	}

	verdict := &Verdict{UserID: p.UserID, TenantID: p.TenantID}

	for _, role := range roles {
		if e.allow.Contains(role.RoleTemplateID) {
			verdict.IsAdmin = true
			log.Info().
				Str("user_id", p.UserID).
				Str("role", role.DisplayName).
				Str("role_template_id", role.RoleTemplateID).
				Msg("user holds an admin role")
			break
		}
	}

	if !verdict.IsAdmin {
		log.Debug().
			Str("user_id", p.UserID).
			Int("roles", len(roles)).
			Msg("user holds no allow-listed role")
	}

	return verdict, nil
}
