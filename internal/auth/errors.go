package auth

import (
	"errors"
	"fmt"
	"time"
)

// Rejections surfaced to callers. Each maps to a stable code via Code.
var (
	ErrUnauthenticated       = errors.New("unauthenticated")
	ErrTokenMalformed        = fmt.Errorf("%w: malformed token", ErrUnauthenticated)
	ErrTokenSignatureInvalid = fmt.Errorf("%w: token signature invalid", ErrUnauthenticated)
	ErrTokenExpired          = fmt.Errorf("%w: token expired", ErrUnauthenticated)

	ErrWrongPlatform     = errors.New("token issued for a different platform")
	ErrPlatformForbidden = errors.New("user type may not use this platform")
	ErrRoleForbidden     = errors.New("no held role permits this route")

	ErrAccountLocked      = errors.New("account locked")
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrOTPNotFound = errors.New("no active reset code")
	ErrOTPExpired  = errors.New("reset code expired")
	ErrOTPMismatch = errors.New("reset code does not match")

	ErrSigning = errors.New("signing session token")
)

// Storage and validation errors.
var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrAccountExists    = errors.New("username or email already exists")
	ErrRoleNotFound     = errors.New("role not found")
	ErrInvalidUsername  = errors.New("invalid username")
	ErrInvalidUserType  = errors.New("invalid user type")
	ErrPasswordTooShort = errors.New("password too short")
	ErrStoreTimeout     = errors.New("credential store timed out")
)

// LockedError is returned while an account sits in its lockout window.
// It matches ErrAccountLocked with errors.Is.
type LockedError struct {
	Until      time.Time
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked, retry after %s", e.RetryAfter.Round(time.Second))
}

// Is makes errors.Is(err, ErrAccountLocked) true for a *LockedError.
func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// Stable machine-readable rejection codes.
const (
	CodeUnauthenticated    = "unauthenticated"
	CodeTokenExpired       = "token_expired"
	CodeTokenInvalid       = "token_invalid"
	CodeWrongPlatform      = "wrong_platform"
	CodePlatformForbidden  = "platform_forbidden"
	CodeRoleForbidden      = "role_forbidden"
	CodeAccountLocked      = "account_locked"
	CodeInvalidCredentials = "invalid_credentials"
	CodeOTPNotFound        = "otp_not_found"
	CodeOTPExpired         = "otp_expired"
	CodeOTPMismatch        = "otp_mismatch"
	CodeSigningError       = "signing_error"
	CodeInternal           = "internal_error"
)

// codeTable is ordered: more specific errors first.
var codeTable = []struct {
	err  error
	code string
}{
	{ErrTokenExpired, CodeTokenExpired},
	{ErrTokenMalformed, CodeTokenInvalid},
	{ErrTokenSignatureInvalid, CodeTokenInvalid},
	{ErrUnauthenticated, CodeUnauthenticated},
	{ErrWrongPlatform, CodeWrongPlatform},
	{ErrPlatformForbidden, CodePlatformForbidden},
	{ErrRoleForbidden, CodeRoleForbidden},
	{ErrAccountLocked, CodeAccountLocked},
	{ErrInvalidCredentials, CodeInvalidCredentials},
	{ErrOTPNotFound, CodeOTPNotFound},
	{ErrOTPExpired, CodeOTPExpired},
	{ErrOTPMismatch, CodeOTPMismatch},
	{ErrSigning, CodeSigningError},
}

// Code returns the stable rejection code for err, or CodeInternal when err is
// not part of the rejection taxonomy.
func Code(err error) string {
	for _, c := range codeTable {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// RetryAfter returns the remaining cooldown carried by a lockout rejection.
func RetryAfter(err error) (time.Duration, bool) {
	var locked *LockedError
	if errors.As(err, &locked) {
		return locked.RetryAfter, true
	}
	return 0, false
}
