// Package auth is the authentication and authorization core of Gatekeeper.
//
// Authentication:
//   - Argon2id password hashing; legacy bcrypt hashes verify and are upgraded on login
//   - Stateless HS256 session tokens scoped to one platform (web or mobile)
//   - A login guard that locks an account for a fixed window after repeated failures
//   - A single-use, time-limited OTP password reset that never reveals whether an account exists
//
// Authorization is decided per request by Authorizer: token validity, the
// token's platform against the route's, the platform access table for the
// user type and, for role-checked routes, the caller's roles against the
// route registry. The registry is synchronised from the declared route
// manifest and served from an immutable in-memory snapshot.
//
// All persistent state (lockout counters, reset codes, role bindings) lives
// on SQLite rows, so a restart changes nothing an attacker could exploit.
package auth
