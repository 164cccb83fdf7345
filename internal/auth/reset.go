package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"
)

// otpDigits is the length of a reset code.
const otpDigits = 6

var otpSpace = big.NewInt(1_000_000)

// ResetStore persists reset codes on the account record.
type ResetStore interface {
	StoreResetOTP(ctx context.Context, accountID, otpHash string, expiresAt time.Time) error
	ClearResetOTP(ctx context.Context, accountID, otpHash string) error
	ConsumeResetOTP(ctx context.Context, accountID, otpHash, newPasswordHash string, now time.Time) error
	RecordOTPMismatch(ctx context.Context, accountID, otpHash string, maxAttempts int) (burned bool, err error)
}

// AccountLookup resolves a login identifier to an account.
type AccountLookup interface {
	GetByIdentifier(ctx context.Context, identifier string) (*Account, error)
}

// ResetNotice is handed to a Notifier once per configured channel.
// OTP is the only place the plaintext code exists.
type ResetNotice struct {
	AccountID string
	Username  string
	Email     string
	Channel   string
	OTP       string
	ExpiresAt time.Time
}

// Notifier delivers reset codes out of band. RequestReset waits on it, so
// implementations that talk to a network should hand the notice to a queue
// and return.
type Notifier interface {
	NotifyReset(ctx context.Context, notice ResetNotice) error
}

// ResetFlow implements the OTP password reset:
// NoActiveReset -> OtpIssued -> Consumed | Expired.
type ResetFlow struct {
	accounts AccountLookup
	store    ResetStore
	notifier Notifier
	policy   ResetPolicy
	now      func() time.Time
	logger   *slog.Logger
}

// NewResetFlow creates a reset flow. Zero policy fields take the defaults.
func NewResetFlow(accounts AccountLookup, store ResetStore, notifier Notifier, policy ResetPolicy, logger *slog.Logger) *ResetFlow {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResetFlow{
		accounts: accounts,
		store:    store,
		notifier: notifier,
		policy:   policy.withDefaults(),
		now:      time.Now,
		logger:   logger,
	}
}

// RequestReset issues a fresh code for the account behind identifier and
// dispatches it. Unknown, inactive and deleted accounts get the same nil
// result as real ones, after the same store round trip and no sooner than
// MinResponse. Only a store failure is reported.
func (f *ResetFlow) RequestReset(ctx context.Context, identifier string) error {
	start := time.Now()
	defer f.pace(ctx, start)

	otp, err := generateOTP()
	if err != nil {
		return fmt.Errorf("generating reset code: %w", err)
	}
	expiresAt := f.now().Add(f.policy.OTPTTL).UTC().Truncate(time.Second)

	account, err := f.accounts.GetByIdentifier(ctx, identifier)
	if errors.Is(err, ErrAccountNotFound) {
		f.logger.Debug("reset requested for unknown identifier")
		return f.decoy(ctx, otp, expiresAt)
	}
	if err != nil {
		return err
	}
	if !account.CanAuthenticate() {
		f.logger.Debug("reset requested for disabled account", "account_id", account.ID)
		return f.decoy(ctx, otp, expiresAt)
	}

	if err := f.store.StoreResetOTP(ctx, account.ID, hashOTP(account.ID, otp), expiresAt); err != nil {
		return err
	}

	for _, channel := range f.policy.Channels {
		notice := ResetNotice{
			AccountID: account.ID,
			Username:  account.Username,
			Email:     account.Email,
			Channel:   channel,
			OTP:       otp,
			ExpiresAt: expiresAt,
		}
		if err := f.notifier.NotifyReset(ctx, notice); err != nil {
			f.logger.Warn("reset code dispatch failed",
				"account_id", account.ID,
				"channel", channel,
				"error", err,
			)
		}
	}

	f.logger.Info("reset code issued",
		"account_id", account.ID,
		"expires_at", expiresAt.Format(time.RFC3339),
	)
	return nil
}

// decoy runs the store write a real request would, against an ID no account
// has, so the no-account paths cost the same round trip.
func (f *ResetFlow) decoy(ctx context.Context, otp string, expiresAt time.Time) error {
	err := f.store.StoreResetOTP(ctx, "", hashOTP("", otp), expiresAt)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		return err
	}
	return nil
}

// pace holds RequestReset until MinResponse has passed since start, or ctx ends.
func (f *ResetFlow) pace(ctx context.Context, start time.Time) {
	wait := f.policy.MinResponse - time.Since(start)
	if wait <= 0 {
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// ValidateOTP checks a candidate code without consuming it.
func (f *ResetFlow) ValidateOTP(ctx context.Context, identifier, otp string) error {
	account, err := f.lookup(ctx, identifier)
	if err != nil {
		return err
	}
	_, err = f.check(ctx, account, otp)
	return err
}

// ResetPassword re-validates the code and, in one statement, replaces the
// password hash, clears the code and lifts any lockout. A code is accepted
// at most once; a second attempt fails with ErrOTPNotFound.
func (f *ResetFlow) ResetPassword(ctx context.Context, identifier, otp, newPassword string) (*Account, error) {
	if len(newPassword) < minPasswordLength {
		return nil, ErrPasswordTooShort
	}

	account, err := f.lookup(ctx, identifier)
	if err != nil {
		return nil, err
	}
	otpHash, err := f.check(ctx, account, otp)
	if err != nil {
		return nil, err
	}

	passwordHash, err := HashPassword(newPassword)
	if err != nil {
		return nil, fmt.Errorf("hashing new password: %w", err)
	}

	if err := f.store.ConsumeResetOTP(ctx, account.ID, otpHash, passwordHash, f.now()); err != nil {
		return nil, err
	}

	f.logger.Info("password reset", "account_id", account.ID)
	return account, nil
}

// lookup maps every "no usable account" outcome to ErrOTPNotFound.
func (f *ResetFlow) lookup(ctx context.Context, identifier string) (*Account, error) {
	account, err := f.accounts.GetByIdentifier(ctx, identifier)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, ErrOTPNotFound
	}
	if err != nil {
		return nil, err
	}
	if !account.CanAuthenticate() {
		return nil, ErrOTPNotFound
	}
	return account, nil
}

// check compares otp with the stored code and returns its hash. An expired
// code is cleared as it is rejected, and a wrong guess is counted against
// the code until MaxAttempts voids it.
func (f *ResetFlow) check(ctx context.Context, account *Account, otp string) (string, error) {
	if account.ResetOTPHash == "" || account.ResetOTPExpiresAt == nil {
		return "", ErrOTPNotFound
	}

	if !f.now().Before(*account.ResetOTPExpiresAt) {
		if err := f.store.ClearResetOTP(ctx, account.ID, account.ResetOTPHash); err != nil {
			f.logger.Warn("clearing expired reset code failed", "account_id", account.ID, "error", err)
		}
		return "", ErrOTPExpired
	}

	candidate := hashOTP(account.ID, otp)
	if subtle.ConstantTimeCompare([]byte(candidate), []byte(account.ResetOTPHash)) != 1 {
		burned, err := f.store.RecordOTPMismatch(ctx, account.ID, account.ResetOTPHash, f.policy.MaxAttempts)
		if err != nil {
			return "", err
		}
		if burned {
			f.logger.Warn("reset code voided after repeated wrong guesses",
				"account_id", account.ID,
				"max_attempts", f.policy.MaxAttempts,
			)
		}
		return "", ErrOTPMismatch
	}
	return candidate, nil
}

// generateOTP returns a uniformly random zero-padded decimal code.
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, otpSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}

// hashOTP binds a code to its account so equal codes on two accounts store
// different hashes.
func hashOTP(accountID, otp string) string {
	sum := sha256.Sum256([]byte(accountID + ":" + otp))
	return hex.EncodeToString(sum[:])
}
