package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gatekeeper/internal/infrastructure/database"
)

// accountColumns is the column list every account query selects, in scan order.
const accountColumns = `id, username, email, password_hash, user_type, is_active, is_deleted,
	login_retry_count, login_reactive_at, reset_otp_hash, reset_otp_expires_at, reset_otp_attempts,
	created_at, updated_at`

// AccountRepository defines the credential store operations used by the
// service and the account administration endpoints.
type AccountRepository interface {
	Create(ctx context.Context, account *Account, roleCodes ...string) error
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByIdentifier(ctx context.Context, identifier string) (*Account, error)
	List(ctx context.Context, filter AccountFilter) ([]Account, error)
	Count(ctx context.Context, filter AccountFilter) (int, error)
	Update(ctx context.Context, id string, update AccountUpdate) (*Account, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	SoftDelete(ctx context.Context, id string) error
}

// AccountUpdate lists the administratively editable fields. Nil fields are
// left as they are.
type AccountUpdate struct {
	Email    *string
	UserType *UserType
	IsActive *bool
}

// empty reports whether the update changes nothing.
func (u AccountUpdate) empty() bool {
	return u.Email == nil && u.UserType == nil && u.IsActive == nil
}

// AccountFilter narrows List and Count.
type AccountFilter struct {
	UserType       UserType
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// SQLiteAccountRepository implements AccountRepository, LockoutStore,
// ResetStore and RoleResolver on the accounts table.
type SQLiteAccountRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewAccountRepository creates a new SQLite-backed account repository.
func NewAccountRepository(db *sql.DB) *SQLiteAccountRepository {
	return &SQLiteAccountRepository{db: db, now: time.Now}
}

// Create inserts a new account and binds it to roleCodes in one transaction.
// The ID is generated if empty. Unknown role codes fail with ErrRoleNotFound
// and nothing is written.
func (r *SQLiteAccountRepository) Create(ctx context.Context, account *Account, roleCodes ...string) error {
	if account.ID == "" {
		account.ID = "acc-" + uuid.NewString()[:8]
	}

	now := r.now().UTC().Truncate(time.Second)
	account.CreatedAt = now
	account.UpdatedAt = now
	stamp := now.Format(time.RFC3339)

	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO accounts (id, username, email, password_hash, user_type, is_active, is_deleted, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
			account.ID, account.Username, nullString(account.Email), account.PasswordHash,
			string(account.UserType), boolToInt(account.IsActive), stamp, stamp,
		)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return ErrAccountExists
			}
			return storeError("creating account", err)
		}

		for _, code := range roleCodes {
			if err := assignRoleTx(ctx, tx, account.ID, code); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetByID retrieves an account by its unique ID.
func (r *SQLiteAccountRepository) GetByID(ctx context.Context, id string) (*Account, error) {
	return r.getAccount(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = ?", id)
}

// GetByIdentifier retrieves an account by username or, failing that, email.
// Email matching is case-insensitive, as is the unique index behind it, so
// at most one account can own any spelling of an address.
func (r *SQLiteAccountRepository) GetByIdentifier(ctx context.Context, identifier string) (*Account, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, ErrAccountNotFound
	}
	return r.getAccount(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE username = ? OR email = ? COLLATE NOCASE ORDER BY username = ? DESC LIMIT 1",
		identifier, identifier, identifier)
}

// List returns accounts ordered by creation date.
func (r *SQLiteAccountRepository) List(ctx context.Context, filter AccountFilter) ([]Account, error) {
	where, args := filter.where()
	query := "SELECT " + accountColumns + " FROM accounts" + where + " ORDER BY created_at ASC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError("listing accounts", err)
	}
	defer rows.Close()

	accounts := []Account{}
	for rows.Next() {
		a, err := scanAccountFrom(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterating accounts", err)
	}
	return accounts, nil
}

// Count returns the number of accounts matching filter. Limit and Offset are ignored.
func (r *SQLiteAccountRepository) Count(ctx context.Context, filter AccountFilter) (int, error) {
	where, args := filter.where()
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM accounts"+where, args...).Scan(&count); err != nil {
		return 0, storeError("counting accounts", err)
	}
	return count, nil
}

func (f AccountFilter) where() (string, []any) {
	var conditions []string
	var args []any
	if !f.IncludeDeleted {
		conditions = append(conditions, "is_deleted = 0")
	}
	if f.UserType != "" {
		conditions = append(conditions, "user_type = ?")
		args = append(args, string(f.UserType))
	}
	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// Update applies the non-nil fields of update to a live account and returns
// the result. An email already held by another account, in any letter case,
// fails with ErrAccountExists.
func (r *SQLiteAccountRepository) Update(ctx context.Context, id string, update AccountUpdate) (*Account, error) {
	if update.empty() {
		return r.GetByID(ctx, id)
	}

	sets := []string{"updated_at = ?"}
	args := []any{r.stamp()}
	if update.Email != nil {
		sets = append(sets, "email = ?")
		args = append(args, nullString(*update.Email))
	}
	if update.UserType != nil {
		sets = append(sets, "user_type = ?")
		args = append(args, string(*update.UserType))
	}
	if update.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, boolToInt(*update.IsActive))
	}

	err := r.execOne(ctx, "updating account",
		"UPDATE accounts SET "+strings.Join(sets, ", ")+" WHERE id = ? AND is_deleted = 0",
		append(args, id)...,
	)
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// UpdatePassword changes an account's password hash and voids any pending
// reset code issued against the old password.
func (r *SQLiteAccountRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.execOne(ctx, "updating password",
		`UPDATE accounts SET
		   password_hash = ?,
		   reset_otp_hash = NULL,
		   reset_otp_expires_at = NULL,
		   reset_otp_attempts = 0,
		   updated_at = ?
		 WHERE id = ? AND is_deleted = 0`,
		passwordHash, r.stamp(), id,
	)
}

// SoftDelete marks an account deleted and inactive. Rows are never removed.
func (r *SQLiteAccountRepository) SoftDelete(ctx context.Context, id string) error {
	return r.execOne(ctx, "deleting account",
		`UPDATE accounts SET is_deleted = 1, is_active = 0, updated_at = ? WHERE id = ? AND is_deleted = 0`,
		r.stamp(), id,
	)
}

// execOne runs an UPDATE expected to touch exactly one account.
func (r *SQLiteAccountRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrAccountExists
		}
		return storeError(op, err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *SQLiteAccountRepository) stamp() string {
	return r.now().UTC().Format(time.RFC3339)
}

// getAccount executes a query and scans a single account result.
func (r *SQLiteAccountRepository) getAccount(ctx context.Context, query string, args ...any) (*Account, error) {
	return scanAccountFrom(r.db.QueryRowContext(ctx, query, args...))
}

// scanner is an interface for sql.Row and sql.Rows Scan methods.
type scanner interface {
	Scan(dest ...any) error
}

// scanAccountFrom scans an account from any scanner (Row or Rows).
func scanAccountFrom(s scanner) (*Account, error) {
	var a Account
	var email, reactiveAt, otpHash, otpExpiresAt sql.NullString
	var userType string
	var isActive, isDeleted int
	var createdAt, updatedAt string

	err := s.Scan(&a.ID, &a.Username, &email, &a.PasswordHash, &userType,
		&isActive, &isDeleted, &a.LoginRetryCount, &reactiveAt, &otpHash, &otpExpiresAt,
		&a.ResetOTPAttempts, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, storeError("scanning account", err)
	}

	a.UserType = UserType(userType)
	a.IsActive = isActive != 0
	a.IsDeleted = isDeleted != 0
	a.Email = email.String
	a.ResetOTPHash = otpHash.String
	a.LoginReactiveAt = parseNullTime(reactiveAt)
	a.ResetOTPExpiresAt = parseNullTime(otpExpiresAt)
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	a.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &a, nil
}

// storeError wraps a persistence failure, marking deadline and lock
// timeouts with ErrStoreTimeout so callers can tell them apart.
func storeError(op string, err error) error {
	if database.IsTimeout(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrStoreTimeout, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Helper functions.

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
