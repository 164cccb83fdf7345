package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/nerrad567/gatekeeper/internal/auth"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Platform string `json:"platform"`
}

type loginResponse struct {
	Token     string        `json:"token"`
	TokenType string        `json:"token_type"`
	ExpiresAt time.Time     `json:"expires_at"`
	Account   *auth.Account `json:"account"`
}

type forgotPasswordRequest struct {
	Identifier string `json:"identifier"`
}

type validateOTPRequest struct {
	Identifier string `json:"identifier"`
	OTP        string `json:"otp"`
}

type resetPasswordRequest struct {
	Identifier  string `json:"identifier"`
	OTP         string `json:"otp"`
	NewPassword string `json:"new_password"`
}

// forgotPasswordMessage is returned whether or not the identifier exists.
const forgotPasswordMessage = "if the account exists, a reset code has been sent"

// decodeJSON reads the request body into v, answering 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}

// handleRegister creates an account with the registration user type.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	account, err := s.auth.Register(r.Context(), auth.RegisterRequest{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		if writeValidationError(w, err) {
			return
		}
		if errors.Is(err, auth.ErrAccountExists) {
			writeConflict(w, "username or email already registered")
			return
		}
		s.logger.Error("register failed", "error", err)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusCreated, account)
}

// handleLogin exchanges credentials for a platform-scoped session token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}
	platform, ok := auth.ParsePlatform(req.Platform)
	if !ok {
		writeBadRequest(w, "platform must be web or mobile")
		return
	}

	result, err := s.auth.Login(r.Context(), auth.LoginRequest{
		Identifier: req.Username,
		Password:   req.Password,
		Platform:   platform,
	})
	if err != nil {
		if auth.Code(err) == auth.CodeInternal {
			s.logger.Error("login failed", "error", err)
		}
		writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     result.Token.Token,
		TokenType: "Bearer",
		ExpiresAt: result.Token.ExpiresAt,
		Account:   result.Account,
	})
}

// handleForgotPassword issues a reset code. The response never reveals
// whether the identifier matched an account.
func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Identifier) == "" {
		writeBadRequest(w, "identifier is required")
		return
	}

	if err := s.auth.RequestReset(r.Context(), req.Identifier); err != nil {
		s.logger.Error("reset request failed", "error", err)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"message": forgotPasswordMessage})
}

// handleValidateOTP checks a reset code without consuming it.
func (s *Server) handleValidateOTP(w http.ResponseWriter, r *http.Request) {
	var req validateOTPRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Identifier == "" || req.OTP == "" {
		writeBadRequest(w, "identifier and otp are required")
		return
	}

	if err := s.auth.ValidateOTP(r.Context(), req.Identifier, req.OTP); err != nil {
		if auth.Code(err) == auth.CodeInternal {
			s.logger.Error("otp validation failed", "error", err)
		}
		writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

// handleResetPassword consumes a reset code and sets the new password.
func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Identifier == "" || req.OTP == "" {
		writeBadRequest(w, "identifier and otp are required")
		return
	}

	if err := s.auth.ResetPassword(r.Context(), req.Identifier, req.OTP, req.NewPassword); err != nil {
		if writeValidationError(w, err) {
			return
		}
		if auth.Code(err) == auth.CodeInternal {
			s.logger.Error("password reset failed", "error", err)
		}
		writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}
