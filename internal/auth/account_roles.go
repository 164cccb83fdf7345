package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/nerrad567/gatekeeper/internal/infrastructure/database"
)

// RoleResolver resolves the role codes an account currently holds.
type RoleResolver interface {
	RolesForAccount(ctx context.Context, accountID string) ([]string, error)
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// RolesForAccount returns the role codes bound to an account, heaviest first.
// Deleted or inactive accounts hold no roles.
func (r *SQLiteAccountRepository) RolesForAccount(ctx context.Context, accountID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT ro.code
		 FROM account_roles ar
		 JOIN roles ro ON ro.id = ar.role_id
		 JOIN accounts a ON a.id = ar.account_id
		 WHERE ar.account_id = ? AND a.is_active = 1 AND a.is_deleted = 0
		 ORDER BY ro.weight DESC, ro.code ASC`, accountID)
	if err != nil {
		return nil, storeError("resolving account roles", err)
	}
	defer rows.Close()

	codes := []string{}
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, storeError("scanning account role", err)
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterating account roles", err)
	}
	return codes, nil
}

// AssignRole binds an account to a role. Assigning a role the account already
// holds is a no-op.
func (r *SQLiteAccountRepository) AssignRole(ctx context.Context, accountID, roleCode string) error {
	var exists int
	err := r.db.QueryRowContext(ctx,
		"SELECT 1 FROM accounts WHERE id = ? AND is_deleted = 0", accountID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrAccountNotFound
	}
	if err != nil {
		return storeError("checking account", err)
	}
	return assignRoleTx(ctx, r.db, accountID, roleCode)
}

// RevokeRole removes a role binding from an account.
func (r *SQLiteAccountRepository) RevokeRole(ctx context.Context, accountID, roleCode string) error {
	return revokeRoleTx(ctx, r.db, accountID, roleCode)
}

// UpdateRoles applies assign then revoke in one transaction. An unknown
// role code fails with ErrRoleNotFound and leaves the bindings untouched.
func (r *SQLiteAccountRepository) UpdateRoles(ctx context.Context, accountID string, assign, revoke []string) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx,
			"SELECT 1 FROM accounts WHERE id = ? AND is_deleted = 0", accountID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrAccountNotFound
		}
		if err != nil {
			return storeError("checking account", err)
		}

		for _, code := range assign {
			if err := assignRoleTx(ctx, tx, accountID, code); err != nil {
				return err
			}
		}
		for _, code := range revoke {
			if err := revokeRoleTx(ctx, tx, accountID, code); err != nil {
				return err
			}
		}
		return nil
	})
}

// AccountsWithoutRoles returns active, non-deleted accounts holding no role.
func (r *SQLiteAccountRepository) AccountsWithoutRoles(ctx context.Context) ([]Account, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+accountColumns+` FROM accounts a
		 WHERE a.is_active = 1 AND a.is_deleted = 0
		   AND NOT EXISTS (SELECT 1 FROM account_roles ar WHERE ar.account_id = a.id)
		 ORDER BY a.created_at ASC`)
	if err != nil {
		return nil, storeError("listing unbound accounts", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		a, err := scanAccountFrom(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterating unbound accounts", err)
	}
	return accounts, nil
}

func revokeRoleTx(ctx context.Context, q querier, accountID, roleCode string) error {
	_, err := q.ExecContext(ctx,
		`DELETE FROM account_roles
		 WHERE account_id = ? AND role_id = (SELECT id FROM roles WHERE code = ?)`,
		accountID, strings.ToUpper(roleCode))
	if err != nil {
		return storeError("revoking role", err)
	}
	return nil
}

func assignRoleTx(ctx context.Context, q querier, accountID, roleCode string) error {
	var roleID string
	err := q.QueryRowContext(ctx, "SELECT id FROM roles WHERE code = ?", strings.ToUpper(roleCode)).Scan(&roleID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrRoleNotFound, roleCode)
	}
	if err != nil {
		return storeError("resolving role", err)
	}

	if _, err := q.ExecContext(ctx,
		"INSERT OR IGNORE INTO account_roles (account_id, role_id) VALUES (?, ?)",
		accountID, roleID); err != nil {
		return storeError("assigning role", err)
	}
	return nil
}
