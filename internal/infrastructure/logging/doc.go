// Package logging builds the slog logger shared by every Gatekeeper
// component.
//
// Entries carry service and version fields, components get their own child
// logger through Component, and attributes whose key names a credential
// (password, otp, token, secret) are written as [REDACTED].
//
//	logger := logging.New(cfg.Logging, version)
//	guard := auth.NewLoginGuard(accounts, policy.Lockout, logger.Component("login_guard"))
package logging
