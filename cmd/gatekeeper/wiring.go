package main

import (
	"fmt"

	"github.com/nerrad567/gatekeeper/internal/api"
	"github.com/nerrad567/gatekeeper/internal/auth"
	"github.com/nerrad567/gatekeeper/internal/infrastructure/config"
)

// policyFromConfig builds the immutable security policy handed to every
// auth component.
func policyFromConfig(cfg *config.Config) (auth.Policy, error) {
	registrationType := auth.UserType(cfg.RBAC.RegistrationUserType)
	if !auth.IsValidUserType(registrationType) {
		return auth.Policy{}, fmt.Errorf("rbac.registration_user_type: %w: %q", auth.ErrInvalidUserType, registrationType)
	}

	access := make(auth.AccessTable, len(cfg.RBAC.PlatformAccess))
	for name, userTypes := range cfg.RBAC.PlatformAccess {
		platform, ok := auth.ParsePlatform(name)
		if !ok {
			return auth.Policy{}, fmt.Errorf("rbac.platform_access: unknown platform %q", name)
		}
		for _, ut := range userTypes {
			if !auth.IsValidUserType(auth.UserType(ut)) {
				return auth.Policy{}, fmt.Errorf("rbac.platform_access.%s: %w: %q", name, auth.ErrInvalidUserType, ut)
			}
			access[platform] = append(access[platform], auth.UserType(ut))
		}
	}

	defaults := make(map[auth.UserType]string, len(cfg.RBAC.DefaultRoles))
	for ut, role := range cfg.RBAC.DefaultRoles {
		if !auth.IsValidUserType(auth.UserType(ut)) {
			return auth.Policy{}, fmt.Errorf("rbac.default_roles: %w: %q", auth.ErrInvalidUserType, ut)
		}
		defaults[auth.UserType(ut)] = role
	}

	return auth.Policy{
		Token: auth.TokenPolicy{
			Secret: []byte(cfg.Security.JWT.Secret),
			TTL:    cfg.GetAccessTokenTTL(),
		},
		Lockout: auth.LockoutPolicy{
			MaxRetry:      cfg.Security.Login.MaxRetry,
			LockoutWindow: cfg.GetLockoutWindow(),
		},
		Reset: auth.ResetPolicy{
			OTPTTL:      cfg.GetOTPTTL(),
			Channels:    cfg.Security.Reset.Channels,
			MaxAttempts: cfg.Security.Reset.MaxAttempts,
			MinResponse: cfg.GetResetMinResponse(),
		},
		Access:               access,
		DefaultRoles:         defaults,
		RegistrationUserType: registrationType,
	}, nil
}

// manifestFromConfig pairs the configured role catalogue and route-role
// table with the endpoints the API server declares.
func manifestFromConfig(rbac config.RBACConfig) (auth.Manifest, error) {
	roles := make([]auth.Role, 0, len(rbac.Roles))
	for _, r := range rbac.Roles {
		roles = append(roles, auth.Role{Code: r.Code, Name: r.Name, Weight: r.Weight})
	}

	rules := make([]auth.RouteRoleRule, 0, len(rbac.RouteRoles))
	for _, rr := range rbac.RouteRoles {
		rule := auth.RouteRoleRule{Route: rr.Route, Role: rr.Role}
		for _, name := range rr.Method {
			m, ok := auth.ParseMethod(name)
			if !ok {
				return auth.Manifest{}, fmt.Errorf("rbac.route_roles %s: unknown method %q", rr.Route, name)
			}
			rule.Methods = append(rule.Methods, m)
		}
		rules = append(rules, rule)
	}

	return api.BuildManifest(roles, rules), nil
}

func seedsFromConfig(seed config.SeedConfig) ([]auth.SeedAccount, error) {
	seeds := make([]auth.SeedAccount, 0, len(seed.Accounts))
	for _, a := range seed.Accounts {
		ut := auth.UserType(a.UserType)
		if !auth.IsValidUserType(ut) {
			return nil, fmt.Errorf("seed account %s: %w: %q", a.Username, auth.ErrInvalidUserType, a.UserType)
		}
		if !auth.IsValidUsername(a.Username) {
			return nil, fmt.Errorf("seed account %q: %w", a.Username, auth.ErrInvalidUsername)
		}
		seeds = append(seeds, auth.SeedAccount{
			Username: a.Username,
			Email:    a.Email,
			Password: a.Password,
			UserType: ut,
		})
	}
	return seeds, nil
}
