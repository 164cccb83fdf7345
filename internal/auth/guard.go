package auth

import (
	"context"
	"log/slog"
	"time"
)

// LockoutStore persists login-throttling state on the account record, so a
// restart does not reset an attacker's budget.
type LockoutStore interface {
	LockState(ctx context.Context, accountID string) (*LockState, error)
	IncrementFailures(ctx context.Context, accountID string, maxRetry int, lockUntil time.Time) (*LockState, error)
	ClearFailures(ctx context.Context, accountID string) error
}

// LoginGuard limits consecutive failed logins per account. After MaxRetry
// failures the account is locked for LockoutWindow.
type LoginGuard struct {
	store  LockoutStore
	policy LockoutPolicy
	now    func() time.Time
	logger *slog.Logger
}

// NewLoginGuard creates a login guard. Zero policy fields take the defaults.
func NewLoginGuard(store LockoutStore, policy LockoutPolicy, logger *slog.Logger) *LoginGuard {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoginGuard{
		store:  store,
		policy: policy.withDefaults(),
		now:    time.Now,
		logger: logger,
	}
}

// CheckAllowed returns a *LockedError while the account is locked, nil otherwise.
// It must be consulted before any password hashing.
func (g *LoginGuard) CheckAllowed(ctx context.Context, accountID string) error {
	state, err := g.store.LockState(ctx, accountID)
	if err != nil {
		return err
	}
	return g.check(state)
}

func (g *LoginGuard) check(state *LockState) error {
	now := g.now()
	if !state.LockedAt(now) {
		return nil
	}
	return &LockedError{
		Until:      *state.LockedUntil,
		RetryAfter: state.LockedUntil.Sub(now),
	}
}

// RecordFailure counts one failed attempt. The returned state shows whether
// this failure tripped the lockout.
func (g *LoginGuard) RecordFailure(ctx context.Context, accountID string) (*LockState, error) {
	now := g.now()
	state, err := g.store.IncrementFailures(ctx, accountID, g.policy.MaxRetry, now.Add(g.policy.LockoutWindow))
	if err != nil {
		return nil, err
	}
	if state.LockedAt(now) && state.FailedAttempts == 0 {
		g.logger.Warn("account locked after repeated login failures",
			"account_id", accountID,
			"max_retry", g.policy.MaxRetry,
			"locked_until", state.LockedUntil.Format(time.RFC3339),
		)
	}
	return state, nil
}

// RecordSuccess clears the failure counter and any lockout.
func (g *LoginGuard) RecordSuccess(ctx context.Context, accountID string) error {
	return g.store.ClearFailures(ctx, accountID)
}
