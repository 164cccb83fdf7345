package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gatekeeper/internal/auth"
)

// Paging limits for POST /api/v1/users/list.
const (
	defaultUserPageSize = 50
	maxUserPageSize     = 200
)

type accountFilterRequest struct {
	UserType       string `json:"user_type"`
	IncludeDeleted bool   `json:"include_deleted"`
	Limit          int    `json:"limit"`
	Offset         int    `json:"offset"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type updateRolesRequest struct {
	Assign []string `json:"assign"`
	Revoke []string `json:"revoke"`
}

type createUserRequest struct {
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Password string   `json:"password"`
	UserType string   `json:"user_type"`
	IsActive *bool    `json:"is_active"`
	Roles    []string `json:"roles"`
}

type updateUserRequest struct {
	Email    *string `json:"email"`
	UserType *string `json:"user_type"`
	IsActive *bool   `json:"is_active"`
}

type updateProfileRequest struct {
	Email string `json:"email"`
}

type accountResponse struct {
	*auth.Account
	Roles []string `json:"roles"`
}

// handleMe returns the caller's own account. It serves both the web and
// the mobile surface.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeAuthError(w, auth.ErrUnauthenticated)
		return
	}

	account, err := s.accounts.GetByID(r.Context(), principal.AccountID)
	if err != nil {
		s.writeAccountError(w, err)
		return
	}
	roles := principal.Roles
	if roles == nil {
		roles = []string{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"account":    accountResponse{Account: account, Roles: roles},
		"platform":   principal.Platform,
		"expires_at": principal.ExpiresAt,
	})
}

// handleChangePassword replaces the caller's password.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeAuthError(w, auth.ErrUnauthenticated)
		return
	}

	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.CurrentPassword == "" {
		writeBadRequest(w, "current_password is required")
		return
	}

	if err := s.auth.ChangePassword(r.Context(), principal.AccountID, req.CurrentPassword, req.NewPassword); err != nil {
		if writeValidationError(w, err) {
			return
		}
		if errors.Is(err, auth.ErrInvalidCredentials) || errors.Is(err, auth.ErrAccountLocked) {
			writeAuthError(w, err)
			return
		}
		s.writeAccountError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleListUsers returns a page of accounts.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	filter, ok := s.decodeAccountFilter(w, r)
	if !ok {
		return
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultUserPageSize
	}
	if filter.Limit > maxUserPageSize {
		filter.Limit = maxUserPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	accounts, err := s.accounts.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("list accounts failed", "error", err)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users":  accounts,
		"count":  len(accounts),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// handleCountUsers returns the number of accounts matching the filter.
func (s *Server) handleCountUsers(w http.ResponseWriter, r *http.Request) {
	filter, ok := s.decodeAccountFilter(w, r)
	if !ok {
		return
	}

	count, err := s.accounts.Count(r.Context(), filter)
	if err != nil {
		s.logger.Error("count accounts failed", "error", err)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

// handleGetUser returns one account with its roles.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	resp, err := s.accountWithRoles(r, chi.URLParam(r, "id"))
	if err != nil {
		s.writeAccountError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSoftDeleteUser marks an account deleted. Callers cannot delete
// themselves.
func (s *Server) handleSoftDeleteUser(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if principal != nil && principal.AccountID == id {
		writeBadRequest(w, "cannot delete your own account")
		return
	}

	if err := s.accounts.SoftDelete(r.Context(), id); err != nil {
		s.writeAccountError(w, err)
		return
	}

	s.logger.Info("account soft-deleted", "account_id", id, "deleted_by", actorID(principal))
	s.auditLog("delete", "account", id, actorID(principal), nil)

	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

// handleUpdateUserRoles assigns and revokes role codes on an account.
func (s *Server) handleUpdateUserRoles(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var req updateRolesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Assign) == 0 && len(req.Revoke) == 0 {
		writeBadRequest(w, "assign or revoke is required")
		return
	}

	if err := s.accounts.UpdateRoles(r.Context(), id, req.Assign, req.Revoke); err != nil {
		if writeValidationError(w, err) {
			return
		}
		s.writeAccountError(w, err)
		return
	}

	resp, err := s.accountWithRoles(r, id)
	if err != nil {
		s.writeAccountError(w, err)
		return
	}

	s.auditLog("update_roles", "account", id, actorID(principal), map[string]any{
		"assigned": req.Assign,
		"revoked":  req.Revoke,
	})
	writeJSON(w, http.StatusOK, resp)
}

// handleCreateUser creates an account on behalf of an administrator.
// Accounts are active unless is_active is false.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())

	var req createUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	active := req.IsActive == nil || *req.IsActive

	account, err := s.auth.CreateAccount(r.Context(), auth.CreateAccountRequest{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		UserType: auth.UserType(req.UserType),
		IsActive: active,
		Roles:    req.Roles,
	})
	if err != nil {
		s.writeAccountUpdateError(w, err)
		return
	}

	resp, err := s.accountWithRoles(r, account.ID)
	if err != nil {
		s.writeAccountError(w, err)
		return
	}
	s.auditLog("create", "account", account.ID, actorID(principal), map[string]any{
		"user_type": string(account.UserType),
		"roles":     resp.Roles,
	})
	writeJSON(w, http.StatusCreated, resp)
}

// handleUpdateUser changes the email, user type or active flag of an
// account. Callers cannot deactivate themselves.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var req updateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == nil && req.UserType == nil && req.IsActive == nil {
		writeBadRequest(w, "email, user_type or is_active is required")
		return
	}
	if req.IsActive != nil && !*req.IsActive && actorID(principal) == id {
		writeBadRequest(w, "cannot deactivate your own account")
		return
	}

	update := auth.AccountUpdate{Email: req.Email, IsActive: req.IsActive}
	if req.UserType != nil {
		ut := auth.UserType(*req.UserType)
		update.UserType = &ut
	}

	if _, err := s.auth.UpdateAccount(r.Context(), id, update); err != nil {
		s.writeAccountUpdateError(w, err)
		return
	}

	resp, err := s.accountWithRoles(r, id)
	if err != nil {
		s.writeAccountError(w, err)
		return
	}

	details := map[string]any{}
	if req.Email != nil {
		details["email"] = *req.Email
	}
	if req.UserType != nil {
		details["user_type"] = *req.UserType
	}
	if req.IsActive != nil {
		details["is_active"] = *req.IsActive
	}
	s.auditLog("update", "account", id, actorID(principal), details)
	writeJSON(w, http.StatusOK, resp)
}

// handleUpdateProfile lets the caller change their own email.
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeAuthError(w, auth.ErrUnauthenticated)
		return
	}

	var req updateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	account, err := s.auth.UpdateProfile(r.Context(), principal.AccountID, req.Email)
	if err != nil {
		s.writeAccountUpdateError(w, err)
		return
	}

	roles := principal.Roles
	if roles == nil {
		roles = []string{}
	}
	s.auditLog("update_profile", "account", account.ID, account.ID, nil)
	writeJSON(w, http.StatusOK, accountResponse{Account: account, Roles: roles})
}

func (s *Server) decodeAccountFilter(w http.ResponseWriter, r *http.Request) (auth.AccountFilter, bool) {
	// An empty body means no filter.
	var req accountFilterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return auth.AccountFilter{}, false
	}
	filter := auth.AccountFilter{
		IncludeDeleted: req.IncludeDeleted,
		Limit:          req.Limit,
		Offset:         req.Offset,
	}
	if req.UserType != "" {
		filter.UserType = auth.UserType(req.UserType)
		if !auth.IsValidUserType(filter.UserType) {
			writeValidationError(w, auth.ErrInvalidUserType)
			return auth.AccountFilter{}, false
		}
	}
	return filter, true
}

func (s *Server) accountWithRoles(r *http.Request, id string) (*accountResponse, error) {
	account, err := s.accounts.GetByID(r.Context(), id)
	if err != nil {
		return nil, err
	}
	roles, err := s.accounts.RolesForAccount(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if roles == nil {
		roles = []string{}
	}
	return &accountResponse{Account: account, Roles: roles}, nil
}

func (s *Server) writeAccountError(w http.ResponseWriter, err error) {
	if errors.Is(err, auth.ErrAccountNotFound) {
		writeNotFound(w, "account not found")
		return
	}
	s.logger.Error("account operation failed", "error", err)
	if errors.Is(err, auth.ErrStoreTimeout) {
		writeUnavailable(w)
		return
	}
	writeInternalError(w)
}

// writeAccountUpdateError maps create and update failures, falling back to
// writeAccountError.
func (s *Server) writeAccountUpdateError(w http.ResponseWriter, err error) {
	if writeValidationError(w, err) {
		return
	}
	if errors.Is(err, auth.ErrAccountExists) {
		writeConflict(w, "username or email already registered")
		return
	}
	s.writeAccountError(w, err)
}

func actorID(p *auth.Principal) string {
	if p == nil {
		return ""
	}
	return p.AccountID
}
