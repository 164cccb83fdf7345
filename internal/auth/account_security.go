package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// LockState is the persisted login-throttling state of an account.
type LockState struct {
	FailedAttempts int
	LockedUntil    *time.Time
}

// LockedAt reports whether the account is inside its lockout window at now.
func (s *LockState) LockedAt(now time.Time) bool {
	return s.LockedUntil != nil && now.Before(*s.LockedUntil)
}

// LockState reads the failure counter and lockout deadline of an account.
func (r *SQLiteAccountRepository) LockState(ctx context.Context, accountID string) (*LockState, error) {
	var state LockState
	var until sql.NullString
	err := r.db.QueryRowContext(ctx,
		"SELECT login_retry_count, login_reactive_at FROM accounts WHERE id = ?", accountID,
	).Scan(&state.FailedAttempts, &until)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, storeError("reading lock state", err)
	}
	state.LockedUntil = parseNullTime(until)
	return &state, nil
}

// IncrementFailures records one failed login in a single statement. When the
// counter reaches maxRetry the account is locked until lockUntil and the
// counter starts again from zero. Concurrent calls never lose an increment.
func (r *SQLiteAccountRepository) IncrementFailures(ctx context.Context, accountID string, maxRetry int, lockUntil time.Time) (*LockState, error) {
	var state LockState
	var until sql.NullString
	err := r.db.QueryRowContext(ctx,
		`UPDATE accounts SET
		   login_retry_count = CASE WHEN login_retry_count + 1 >= ?1 THEN 0 ELSE login_retry_count + 1 END,
		   login_reactive_at = CASE WHEN login_retry_count + 1 >= ?1 THEN ?2 ELSE login_reactive_at END,
		   updated_at = ?3
		 WHERE id = ?4
		 RETURNING login_retry_count, login_reactive_at`,
		maxRetry, lockUntil.UTC().Format(time.RFC3339), r.stamp(), accountID,
	).Scan(&state.FailedAttempts, &until)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, storeError("recording login failure", err)
	}
	state.LockedUntil = parseNullTime(until)
	return &state, nil
}

// ClearFailures resets the failure counter and lifts any lockout.
func (r *SQLiteAccountRepository) ClearFailures(ctx context.Context, accountID string) error {
	return r.execOne(ctx, "clearing login failures",
		`UPDATE accounts SET login_retry_count = 0, login_reactive_at = NULL, updated_at = ? WHERE id = ?`,
		r.stamp(), accountID,
	)
}

// StoreResetOTP records a hashed reset code, replacing any earlier one and
// its guess counter.
func (r *SQLiteAccountRepository) StoreResetOTP(ctx context.Context, accountID, otpHash string, expiresAt time.Time) error {
	return r.execOne(ctx, "storing reset code",
		`UPDATE accounts SET reset_otp_hash = ?, reset_otp_expires_at = ?, reset_otp_attempts = 0, updated_at = ?
		 WHERE id = ? AND is_deleted = 0`,
		otpHash, nullTime(&expiresAt), r.stamp(), accountID,
	)
}

// ClearResetOTP drops the reset code if it is still otpHash, leaving a newer
// code issued in the meantime untouched.
func (r *SQLiteAccountRepository) ClearResetOTP(ctx context.Context, accountID, otpHash string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET reset_otp_hash = NULL, reset_otp_expires_at = NULL, reset_otp_attempts = 0, updated_at = ?
		 WHERE id = ? AND reset_otp_hash = ?`,
		r.stamp(), accountID, otpHash,
	)
	if err != nil {
		return storeError("clearing reset code", err)
	}
	return nil
}

// RecordOTPMismatch counts one wrong guess against the live code otpHash in
// a single statement. The guess that reaches maxAttempts drops the code and
// reports burned. A code replaced in the meantime is left alone.
func (r *SQLiteAccountRepository) RecordOTPMismatch(ctx context.Context, accountID, otpHash string, maxAttempts int) (burned bool, err error) {
	var remaining sql.NullString
	err = r.db.QueryRowContext(ctx,
		`UPDATE accounts SET
		   reset_otp_attempts = CASE WHEN reset_otp_attempts + 1 >= ?1 THEN 0 ELSE reset_otp_attempts + 1 END,
		   reset_otp_hash = CASE WHEN reset_otp_attempts + 1 >= ?1 THEN NULL ELSE reset_otp_hash END,
		   reset_otp_expires_at = CASE WHEN reset_otp_attempts + 1 >= ?1 THEN NULL ELSE reset_otp_expires_at END,
		   updated_at = ?2
		 WHERE id = ?3 AND reset_otp_hash = ?4
		 RETURNING reset_otp_hash`,
		maxAttempts, r.stamp(), accountID, otpHash,
	).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storeError("recording reset code mismatch", err)
	}
	return !remaining.Valid, nil
}

// ConsumeResetOTP replaces the password hash, clears the reset code and lifts
// any lockout in one statement, provided otpHash is still the live, unexpired
// code. Otherwise nothing changes and ErrOTPNotFound is returned, so a code
// can be consumed at most once even under concurrent calls.
func (r *SQLiteAccountRepository) ConsumeResetOTP(ctx context.Context, accountID, otpHash, newPasswordHash string, now time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET
		   password_hash = ?,
		   reset_otp_hash = NULL,
		   reset_otp_expires_at = NULL,
		   reset_otp_attempts = 0,
		   login_retry_count = 0,
		   login_reactive_at = NULL,
		   updated_at = ?
		 WHERE id = ? AND is_deleted = 0 AND reset_otp_hash = ? AND reset_otp_expires_at > ?`,
		newPasswordHash, r.stamp(), accountID, otpHash, now.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return storeError("consuming reset code", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrOTPNotFound
	}
	return nil
}
