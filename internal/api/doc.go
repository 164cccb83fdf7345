// Package api is the HTTP front of Gatekeeper.
//
// It declares one endpoint table that serves two purposes: it is registered
// on a chi router, and its protected rows become the route manifest the
// registry is synchronised from. Every protected request passes through
// auth.Authorizer before its handler runs; the handler then finds the caller
// with auth.PrincipalFromContext.
//
// Public endpoints:
//
//	GET  /health
//	POST /auth/register, /auth/login, /auth/forgot-password, /auth/validate-otp
//	PUT  /auth/reset-password
//
// Web endpoints live under /api/v1, mobile endpoints under /device/api/v1.
// Rejections are JSON of the form
//
//	{"error": {"code": "account_locked", "message": "...", "retry_after_seconds": 1200}}
//
// with 401 for authentication failures, 403 for authorization failures, 423
// for lockouts and 400 for reset code problems.
package api
