// Package authz evaluates "can actor A perform action X on resource R". It is
// a pure read layer over token claims and the membership graph: no caching,
// no precomputed ACLs, so membership changes are visible immediately.
package authz

import (
	"context"
	"errors"
	"strings"

	"utilitygrid.org/internal/identity"
	"utilitygrid.org/internal/membership"
	"utilitygrid.org/internal/token"
)

var (
	// ErrUnauthenticated is the 401 class: missing, malformed or expired
	// credential.
	ErrUnauthenticated = errors.New("authz: unauthenticated")
	// ErrUnauthorized is the 403 class: authenticated but insufficient role
	// or membership. Never conflated with ErrUnauthenticated or NotFound.
	ErrUnauthorized = errors.New("authz: unauthorized")
)

// Principal is the authenticated actor derived from a validated access token.
type Principal struct {
	UserID string
	Role   identity.GlobalRole
}

// IsAdmin reports whether the principal carries the global admin role.
func (p Principal) IsAdmin() bool { return p.Role == identity.RoleAdmin }

// TokenVerifier is the slice of the token service authentication needs.
type TokenVerifier interface {
	ValidateAccessToken(raw string) (token.Claims, error)
}

// RoleDirectory resolves membership roles for business- and site-scoped
// decisions.
type RoleDirectory interface {
	BusinessRole(ctx context.Context, businessID, userID string) (membership.Role, error)
	SiteRole(ctx context.Context, siteID, userID string) (membership.Role, error)
}

// Engine makes authorization decisions.
type Engine struct {
	tokens TokenVerifier
	roles  RoleDirectory
}

func NewEngine(tokens TokenVerifier, roles RoleDirectory) (*Engine, error) {
	if tokens == nil {
		return nil, errors.New("token verifier is required")
	}
	if roles == nil {
		return nil, errors.New("role directory is required")
	}
	return &Engine{tokens: tokens, roles: roles}, nil
}

// Authenticate derives a principal from a raw Authorization header. Anything
// short of a verifiable bearer token fails ErrUnauthenticated.
func (e *Engine) Authenticate(header string) (Principal, error) {
	raw, ok := bearerToken(header)
	if !ok {
		return Principal{}, ErrUnauthenticated
	}
	claims, err := e.tokens.ValidateAccessToken(raw)
	if err != nil {
		return Principal{}, ErrUnauthenticated
	}
	return Principal{UserID: claims.UserID, Role: identity.GlobalRole(claims.Role)}, nil
}

// SelfOrAdmin permits actions a user takes on their own account, plus the
// global admin bypass. Used for profile mutation, password change, deletion.
func (e *Engine) SelfOrAdmin(p Principal, targetUserID string) error {
	if p.UserID == targetUserID || p.IsAdmin() {
		return nil
	}
	return ErrUnauthorized
}

// AdminOnly permits only the global admin role.
func (e *Engine) AdminOnly(p Principal) error {
	if p.IsAdmin() {
		return nil
	}
	return ErrUnauthorized
}

// AuthorizeBusiness resolves the principal's membership role in the business
// and requires it to be one of required. An empty required set means any
// membership suffices. There is no admin bypass at membership scope: business
// decisions are purely a function of the member list.
func (e *Engine) AuthorizeBusiness(ctx context.Context, p Principal, businessID string, required ...membership.Role) error {
	role, err := e.roles.BusinessRole(ctx, businessID, p.UserID)
	if err != nil {
		if errors.Is(err, membership.ErrNotAMember) {
			return ErrUnauthorized
		}
		return err
	}
	return requireRole(role, required)
}

// AuthorizeSite is AuthorizeBusiness at site scope.
func (e *Engine) AuthorizeSite(ctx context.Context, p Principal, siteID string, required ...membership.Role) error {
	role, err := e.roles.SiteRole(ctx, siteID, p.UserID)
	if err != nil {
		if errors.Is(err, membership.ErrNotAMember) {
			return ErrUnauthorized
		}
		return err
	}
	return requireRole(role, required)
}

func requireRole(role membership.Role, required []membership.Role) error {
	if len(required) == 0 {
		return nil
	}
	for _, r := range required {
		if role == r {
			return nil
		}
	}
	return ErrUnauthorized
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	raw := strings.TrimSpace(parts[1])
	if raw == "" {
		return "", false
	}
	return raw, true
}
