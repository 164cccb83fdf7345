package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// reasonPasswordChange marks failures of the current-password check.
const reasonPasswordChange = "password_change"

// ServiceDeps are the collaborators of a Service.
type ServiceDeps struct {
	Accounts AccountRepository
	Guard    *LoginGuard
	Tokens   *TokenService
	Reset    *ResetFlow
	Policy   Policy
	Events   EventRecorder
	Logger   *slog.Logger
}

// Service orchestrates login, registration and password changes on top of
// the guard, the token service and the reset flow.
type Service struct {
	accounts AccountRepository
	guard    *LoginGuard
	tokens   *TokenService
	reset    *ResetFlow
	policy   Policy
	events   EventRecorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a Service.
func NewService(deps ServiceDeps) (*Service, error) {
	if deps.Accounts == nil || deps.Guard == nil || deps.Tokens == nil || deps.Reset == nil {
		return nil, errors.New("auth service: accounts, guard, tokens and reset are required")
	}
	if deps.Events == nil {
		deps.Events = nopRecorder{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		accounts: deps.Accounts,
		guard:    deps.Guard,
		tokens:   deps.Tokens,
		reset:    deps.Reset,
		policy:   deps.Policy,
		events:   deps.Events,
		logger:   deps.Logger,
		now:      time.Now,
	}, nil
}

// LoginRequest carries one sign-in attempt.
type LoginRequest struct {
	Identifier string
	Password   string
	Platform   Platform
}

// LoginResult is a successful sign-in.
type LoginResult struct {
	Token   *IssuedToken
	Account *Account
}

// Login verifies credentials and issues a token scoped to req.Platform.
// Unknown, inactive and deleted accounts fail exactly like a wrong password.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	account, err := s.accounts.GetByIdentifier(ctx, req.Identifier)
	if errors.Is(err, ErrAccountNotFound) {
		burnPasswordCheck(req.Password)
		s.record(ctx, Event{Kind: EventLoginFailed, Platform: req.Platform, Reason: "unknown_account"})
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !account.CanAuthenticate() {
		burnPasswordCheck(req.Password)
		s.record(ctx, s.event(EventLoginFailed, account, req.Platform, "disabled"))
		return nil, ErrInvalidCredentials
	}

	if err := s.guard.CheckAllowed(ctx, account.ID); err != nil {
		if errors.Is(err, ErrAccountLocked) {
			s.record(ctx, s.event(EventLoginRejected, account, req.Platform, CodeAccountLocked))
		}
		return nil, err
	}

	ok, err := VerifyPassword(req.Password, account.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verifying password for %s: %w", account.ID, err)
	}
	if !ok {
		return nil, s.passwordFailed(ctx, account, req.Platform, CodeInvalidCredentials)
	}

	if err := s.guard.RecordSuccess(ctx, account.ID); err != nil {
		return nil, err
	}

	if !s.policy.Access.Allows(req.Platform, account.UserType) {
		s.record(ctx, s.event(EventLoginRejected, account, req.Platform, CodePlatformForbidden))
		return nil, ErrPlatformForbidden
	}

	if NeedsRehash(account.PasswordHash) {
		s.rehash(ctx, account.ID, req.Password)
	}

	token, err := s.tokens.Issue(account.ID, account.UserType, req.Platform)
	if err != nil {
		return nil, err
	}

	s.record(ctx, s.event(EventLoginSucceeded, account, req.Platform, ""))
	return &LoginResult{Token: token, Account: account}, nil
}

// passwordFailed counts a wrong password against the login guard. The
// attempt that trips the lockout is answered with the lockout itself.
func (s *Service) passwordFailed(ctx context.Context, account *Account, platform Platform, reason string) error {
	state, err := s.guard.RecordFailure(ctx, account.ID)
	if err != nil {
		return err
	}
	s.record(ctx, s.event(EventLoginFailed, account, platform, reason))

	now := s.now()
	if state.LockedAt(now) && state.FailedAttempts == 0 {
		s.record(ctx, s.event(EventAccountLocked, account, platform, ""))
		return &LockedError{Until: *state.LockedUntil, RetryAfter: state.LockedUntil.Sub(now)}
	}
	return ErrInvalidCredentials
}

func (s *Service) rehash(ctx context.Context, accountID, password string) {
	hash, err := HashPassword(password)
	if err == nil {
		err = s.accounts.UpdatePassword(ctx, accountID, hash)
	}
	if err != nil {
		s.logger.Warn("password rehash failed", "account_id", accountID, "error", err)
		return
	}
	s.logger.Info("password hash upgraded", "account_id", accountID)
}

// RegisterRequest carries a self-registration.
type RegisterRequest struct {
	Username string
	Email    string
	Password string
}

// Register creates an active account with the registration user type and
// binds it to that type's default role.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Account, error) {
	username := strings.TrimSpace(req.Username)
	if !IsValidUsername(username) {
		return nil, ErrInvalidUsername
	}
	if len(req.Password) < minPasswordLength {
		return nil, ErrPasswordTooShort
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	account := &Account{
		Username:     username,
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: hash,
		UserType:     s.policy.RegistrationUserType,
		IsActive:     true,
	}

	var roles []string
	if code, ok := s.policy.DefaultRoles[account.UserType]; ok {
		roles = append(roles, code)
	}
	if err := s.accounts.Create(ctx, account, roles...); err != nil {
		return nil, err
	}

	s.record(ctx, s.event(EventRegistered, account, "", ""))
	return account, nil
}

// CreateAccountRequest carries an administrator-created account. With no
// Roles the account gets its user type's default role.
type CreateAccountRequest struct {
	Username string
	Email    string
	Password string
	UserType UserType
	IsActive bool
	Roles    []string
}

// CreateAccount creates an account on behalf of an administrator.
func (s *Service) CreateAccount(ctx context.Context, req CreateAccountRequest) (*Account, error) {
	username := strings.TrimSpace(req.Username)
	if !IsValidUsername(username) {
		return nil, ErrInvalidUsername
	}
	if !IsValidUserType(req.UserType) {
		return nil, ErrInvalidUserType
	}
	if len(req.Password) < minPasswordLength {
		return nil, ErrPasswordTooShort
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	account := &Account{
		Username:     username,
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: hash,
		UserType:     req.UserType,
		IsActive:     req.IsActive,
	}
	roles := req.Roles
	if len(roles) == 0 {
		if code, ok := s.policy.DefaultRoles[account.UserType]; ok {
			roles = []string{code}
		}
	}
	if err := s.accounts.Create(ctx, account, roles...); err != nil {
		return nil, err
	}

	s.record(ctx, s.event(EventAccountCreated, account, "", ""))
	return account, nil
}

// UpdateAccount applies an administrative update. Deactivating an account
// stops it authenticating at its next login.
func (s *Service) UpdateAccount(ctx context.Context, id string, update AccountUpdate) (*Account, error) {
	if update.UserType != nil && !IsValidUserType(*update.UserType) {
		return nil, ErrInvalidUserType
	}
	if update.Email != nil {
		email := strings.TrimSpace(*update.Email)
		update.Email = &email
	}

	account, err := s.accounts.Update(ctx, id, update)
	if err != nil {
		return nil, err
	}
	reason := ""
	if update.IsActive != nil && !*update.IsActive {
		reason = "deactivated"
	}
	s.record(ctx, s.event(EventAccountUpdated, account, "", reason))
	return account, nil
}

// UpdateProfile lets an account change its own contact email.
func (s *Service) UpdateProfile(ctx context.Context, id, email string) (*Account, error) {
	return s.UpdateAccount(ctx, id, AccountUpdate{Email: &email})
}

// ChangePassword replaces the password of an authenticated account after
// re-checking the current one. Wrong current passwords count towards the
// same lockout as failed logins. Any pending reset code is voided.
func (s *Service) ChangePassword(ctx context.Context, accountID, current, next string) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !account.CanAuthenticate() {
		return ErrInvalidCredentials
	}
	if err := s.guard.CheckAllowed(ctx, account.ID); err != nil {
		return err
	}

	ok, err := VerifyPassword(current, account.PasswordHash)
	if err != nil {
		return fmt.Errorf("verifying password for %s: %w", account.ID, err)
	}
	if !ok {
		return s.passwordFailed(ctx, account, "", reasonPasswordChange)
	}
	if err := s.guard.RecordSuccess(ctx, account.ID); err != nil {
		return err
	}
	if len(next) < minPasswordLength {
		return ErrPasswordTooShort
	}

	hash, err := HashPassword(next)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := s.accounts.UpdatePassword(ctx, account.ID, hash); err != nil {
		return err
	}

	s.record(ctx, s.event(EventPasswordChanged, account, "", ""))
	return nil
}

// RequestReset starts the reset flow. See ResetFlow.RequestReset.
func (s *Service) RequestReset(ctx context.Context, identifier string) error {
	return s.reset.RequestReset(ctx, identifier)
}

// ValidateOTP checks a reset code without consuming it.
func (s *Service) ValidateOTP(ctx context.Context, identifier, otp string) error {
	return s.reset.ValidateOTP(ctx, identifier, otp)
}

// ResetPassword consumes a reset code and sets a new password.
func (s *Service) ResetPassword(ctx context.Context, identifier, otp, newPassword string) error {
	account, err := s.reset.ResetPassword(ctx, identifier, otp, newPassword)
	if err != nil {
		return err
	}
	s.record(ctx, s.event(EventPasswordReset, account, "", ""))
	return nil
}

func (s *Service) event(kind EventKind, a *Account, platform Platform, reason string) Event {
	return Event{
		Kind:      kind,
		AccountID: a.ID,
		UserType:  a.UserType,
		Platform:  platform,
		Reason:    reason,
	}
}

func (s *Service) record(ctx context.Context, e Event) {
	if e.Time.IsZero() {
		e.Time = s.now().UTC()
	}
	s.events.RecordAuthEvent(ctx, e)
}
