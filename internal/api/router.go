package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gatekeeper/internal/auth"
)

// Guards applied by the endpoint table.
var (
	webSession    = &auth.Guard{Platform: auth.PlatformWeb}
	webRole       = &auth.Guard{Platform: auth.PlatformWeb, CheckRoles: true}
	mobileSession = &auth.Guard{Platform: auth.PlatformMobile}
)

// endpoint is one row of the HTTP surface. A nil guard means public.
type endpoint struct {
	method  string
	pattern string
	guard   *auth.Guard
	// limited endpoints share the per-client rate limiter.
	limited bool
	handler func(*Server, http.ResponseWriter, *http.Request)
}

// endpointTable declares every route the server exposes. It is both the
// chi registration list and the route manifest fed to registry sync.
func endpointTable() []endpoint {
	return []endpoint{
		{http.MethodGet, "/health", nil, false, (*Server).handleHealth},

		{http.MethodPost, "/auth/register", nil, true, (*Server).handleRegister},
		{http.MethodPost, "/auth/login", nil, true, (*Server).handleLogin},
		{http.MethodPost, "/auth/forgot-password", nil, true, (*Server).handleForgotPassword},
		{http.MethodPost, "/auth/validate-otp", nil, true, (*Server).handleValidateOTP},
		{http.MethodPut, "/auth/reset-password", nil, true, (*Server).handleResetPassword},

		{http.MethodGet, "/api/v1/users/me", webSession, false, (*Server).handleMe},
		{http.MethodPut, "/api/v1/users/change-password", webSession, false, (*Server).handleChangePassword},
		{http.MethodPut, "/api/v1/users/update-profile", webSession, false, (*Server).handleUpdateProfile},
		{http.MethodPost, "/api/v1/users/create", webRole, false, (*Server).handleCreateUser},
		{http.MethodPut, "/api/v1/users/update/{id}", webRole, false, (*Server).handleUpdateUser},
		{http.MethodPost, "/api/v1/users/list", webRole, false, (*Server).handleListUsers},
		{http.MethodPost, "/api/v1/users/count", webRole, false, (*Server).handleCountUsers},
		{http.MethodGet, "/api/v1/users/{id}", webRole, false, (*Server).handleGetUser},
		{http.MethodPut, "/api/v1/users/softdelete/{id}", webRole, false, (*Server).handleSoftDeleteUser},
		{http.MethodPost, "/api/v1/users/{id}/roles", webRole, false, (*Server).handleUpdateUserRoles},
		{http.MethodPost, "/api/v1/registry/sync", webRole, false, (*Server).handleRegistrySync},
		{http.MethodGet, "/api/v1/audit", webRole, false, (*Server).handleListAuditLogs},

		{http.MethodGet, "/device/api/v1/user/me", mobileSession, false, (*Server).handleMe},
	}
}

// RouteSpecs lists the protected endpoints as registry route descriptors.
func RouteSpecs() []auth.RouteSpec {
	var specs []auth.RouteSpec
	for _, ep := range endpointTable() {
		if ep.guard == nil {
			continue
		}
		method, _ := auth.ParseMethod(ep.method)
		specs = append(specs, auth.RouteSpec{URI: ep.pattern, Method: method})
	}
	return specs
}

// BuildManifest combines the endpoint table with the configured role
// catalogue and static route-role rules.
func BuildManifest(roles []auth.Role, rules []auth.RouteRoleRule) auth.Manifest {
	return auth.Manifest{Roles: roles, Routes: RouteSpecs(), Rules: rules}
}

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)
	if s.queryTimeout > 0 {
		r.Use(s.queryTimeoutMiddleware)
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	for _, ep := range endpointTable() {
		var h http.Handler = s.bind(ep.handler)
		if ep.guard != nil {
			h = s.authorize(ep.pattern, ep.method, *ep.guard)(h)
		}
		if ep.limited && s.limiter != nil {
			h = s.rateLimit(h)
		}
		r.Method(ep.method, ep.pattern, h)
	}

	return r
}

func (s *Server) bind(fn func(*Server, http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) { fn(s, w, r) }
}

// healthCheckTimeout bounds each component check on GET /health.
const healthCheckTimeout = 2 * time.Second

// handleHealth reports the server version and the health of each
// registered component. Any failing component turns the status to degraded.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.health))
	status, code := "ok", http.StatusOK

	for name, hc := range s.health {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := hc.HealthCheck(ctx)
		cancel()
		if err != nil {
			s.logger.Warn("health check failed", "component", name, "error", err)
			checks[name] = "unhealthy"
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
		"checks":  checks,
	})
}
