package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/nerrad567/gatekeeper/internal/auth"
)

// errorResponse is the body of every rejection.
type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code              string `json:"code"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

// Transport-level error codes. Authorization codes come from auth.Code.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeConflict       = "conflict"
	ErrCodeValidation     = "validation_error"
	ErrCodeMethodNotAllow = "method_not_allowed"
	ErrCodeRateLimited    = "rate_limited"
	ErrCodeUnavailable    = "unavailable"
)

// authStatus maps each rejection code to its HTTP status.
var authStatus = map[string]int{
	auth.CodeUnauthenticated:    http.StatusUnauthorized,
	auth.CodeTokenExpired:       http.StatusUnauthorized,
	auth.CodeTokenInvalid:       http.StatusUnauthorized,
	auth.CodeInvalidCredentials: http.StatusUnauthorized,
	auth.CodeWrongPlatform:      http.StatusForbidden,
	auth.CodePlatformForbidden:  http.StatusForbidden,
	auth.CodeRoleForbidden:      http.StatusForbidden,
	auth.CodeAccountLocked:      http.StatusLocked,
	auth.CodeOTPNotFound:        http.StatusBadRequest,
	auth.CodeOTPExpired:         http.StatusBadRequest,
	auth.CodeOTPMismatch:        http.StatusBadRequest,
	auth.CodeSigningError:       http.StatusInternalServerError,
	auth.CodeInternal:           http.StatusInternalServerError,
}

// authMessage is the client-facing text per code. Messages never name the
// account, its user type or the roles involved.
var authMessage = map[string]string{
	auth.CodeUnauthenticated:    "authentication required",
	auth.CodeTokenExpired:       "session expired",
	auth.CodeTokenInvalid:       "invalid session token",
	auth.CodeInvalidCredentials: "invalid credentials",
	auth.CodeWrongPlatform:      "token not valid for this platform",
	auth.CodePlatformForbidden:  "access to this platform is not permitted",
	auth.CodeRoleForbidden:      "insufficient permissions",
	auth.CodeAccountLocked:      "too many failed attempts, try again later",
	auth.CodeOTPNotFound:        "no active reset code",
	auth.CodeOTPExpired:         "reset code expired",
	auth.CodeOTPMismatch:        "reset code does not match",
	auth.CodeSigningError:       "internal server error",
	auth.CodeInternal:           "internal server error",
}

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorDetail{Code: code, Message: message}})
}

// writeAuthError maps a rejection from the auth package onto the wire.
// Lockouts carry the remaining cooldown in both the Retry-After header and
// the body.
func writeAuthError(w http.ResponseWriter, err error) {
	if errors.Is(err, auth.ErrStoreTimeout) {
		writeUnavailable(w)
		return
	}
	code := auth.Code(err)
	detail := errorDetail{Code: code, Message: authMessage[code]}

	if wait, ok := auth.RetryAfter(err); ok {
		secs := int(math.Ceil(wait.Seconds()))
		if secs < 1 {
			secs = 1
		}
		detail.RetryAfterSeconds = secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}

	writeJSON(w, authStatus[code], errorResponse{Error: detail})
}

// writeValidationError answers input problems the auth package reports
// before any credential is checked.
func writeValidationError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, auth.ErrInvalidUsername):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "username must be 1-64 characters of letters, digits, dot, dash or underscore")
	case errors.Is(err, auth.ErrPasswordTooShort):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "password must be at least 8 characters")
	case errors.Is(err, auth.ErrInvalidUserType):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "invalid user type")
	case errors.Is(err, auth.ErrRoleNotFound):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "unknown role")
	default:
		return false
	}
	return true
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeConflict(w http.ResponseWriter, message string) {
	writeError(w, http.StatusConflict, ErrCodeConflict, message)
}

// writeUnavailable answers a request whose store work ran out of time.
func writeUnavailable(w http.ResponseWriter) {
	writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "service temporarily unavailable")
}

func writeInternalError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, auth.CodeInternal, "internal server error")
}
