package auth

import (
	"context"
	"log/slog"
)

// TokenVerifier validates a raw session token.
type TokenVerifier interface {
	Verify(raw string) (*Identity, error)
}

// PermissionLookup returns the role codes permitted on a route.
type PermissionLookup interface {
	PermittedRoles(uri string, method Method) []string
}

// Guard describes what a protected route requires of its caller.
type Guard struct {
	Platform   Platform
	CheckRoles bool
}

// Request is the input to one authorization decision.
type Request struct {
	Token  string
	Route  string
	Method Method
	Guard  Guard
}

// Authorizer makes the per-request access decision. It holds no state of
// its own; every capability is injected.
type Authorizer struct {
	tokens      TokenVerifier
	permissions PermissionLookup
	roles       RoleResolver
	access      AccessTable
	logger      *slog.Logger
}

// NewAuthorizer creates an authorizer.
func NewAuthorizer(tokens TokenVerifier, permissions PermissionLookup, roles RoleResolver, access AccessTable, logger *slog.Logger) *Authorizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authorizer{
		tokens:      tokens,
		permissions: permissions,
		roles:       roles,
		access:      access,
		logger:      logger,
	}
}

// Authorize runs the checks in order: token, platform scope, platform access
// for the user type, then (when the guard asks for it) role membership
// against the route registry. The first failure is returned. A returned
// principal always carries the account's roles.
func (a *Authorizer) Authorize(ctx context.Context, req Request) (*Principal, error) {
	if req.Token == "" {
		return nil, ErrUnauthenticated
	}

	identity, err := a.tokens.Verify(req.Token)
	if err != nil {
		return nil, err
	}

	if identity.Platform != req.Guard.Platform {
		return nil, ErrWrongPlatform
	}
	if !a.access.Allows(identity.Platform, identity.UserType) {
		return nil, ErrPlatformForbidden
	}

	held, err := a.roles.RolesForAccount(ctx, identity.AccountID)
	if err != nil {
		return nil, err
	}
	principal := &Principal{Identity: *identity, Roles: held}
	if !req.Guard.CheckRoles {
		return principal, nil
	}

	permitted := a.permissions.PermittedRoles(req.Route, req.Method)
	for _, role := range held {
		for _, p := range permitted {
			if role == p {
				return principal, nil
			}
		}
	}

	a.logger.Debug("role check failed",
		"account_id", identity.AccountID,
		"route", req.Route,
		"method", req.Method.String(),
		"held", held,
	)
	return nil, ErrRoleForbidden
}
