package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gatekeeper/internal/infrastructure/database"
)

// SQLiteRegistryStore implements RegistryStore on the roles, project_routes
// and route_roles tables.
type SQLiteRegistryStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewRegistryStore creates a SQLite-backed registry store.
func NewRegistryStore(db *sql.DB) *SQLiteRegistryStore {
	return &SQLiteRegistryStore{db: db, now: time.Now}
}

// EnsureRoles inserts roles whose code is not yet present. Existing roles
// are left untouched, so a referenced code never changes.
func (s *SQLiteRegistryStore) EnsureRoles(ctx context.Context, roles []Role) (int, error) {
	stamp := s.now().UTC().Format(time.RFC3339)
	added := 0
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, role := range roles {
			res, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO roles (id, code, name, weight, created_at) VALUES (?, ?, ?, ?, ?)`,
				"role-"+uuid.NewString()[:8], strings.ToUpper(role.Code), role.Name, role.Weight, stamp,
			)
			if err != nil {
				return storeError("inserting role", err)
			}
			added += affected(res)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// EnsureRoutes inserts route descriptors not yet present.
func (s *SQLiteRegistryStore) EnsureRoutes(ctx context.Context, routes []RouteSpec) (int, error) {
	stamp := s.now().UTC().Format(time.RFC3339)
	added := 0
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, rt := range routes {
			res, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO project_routes (id, route_name, uri, method, is_active, created_at)
				 VALUES (?, ?, ?, ?, 1, ?)`,
				"rt-"+uuid.NewString()[:8], NormalizeRoute(rt.URI), rt.URI, rt.Method.String(), stamp,
			)
			if err != nil {
				return storeError("inserting route", err)
			}
			added += affected(res)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// BindRoutes inserts missing bindings. Bindings whose route or role does not
// exist are returned as unresolved and nothing is written for them.
func (s *SQLiteRegistryStore) BindRoutes(ctx context.Context, bindings []RouteBinding) (int, []RouteBinding, error) {
	added := 0
	var unresolved []RouteBinding
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		added, unresolved = 0, nil
		for _, b := range bindings {
			var routeID, roleID string
			err := tx.QueryRowContext(ctx,
				"SELECT id FROM project_routes WHERE route_name = ? AND method = ?",
				b.Key.Name, b.Key.Method.String()).Scan(&routeID)
			if err == nil {
				err = tx.QueryRowContext(ctx, "SELECT id FROM roles WHERE code = ?", b.RoleCode).Scan(&roleID)
			}
			if errors.Is(err, sql.ErrNoRows) {
				unresolved = append(unresolved, b)
				continue
			}
			if err != nil {
				return storeError("resolving binding", err)
			}

			res, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO route_roles (role_id, route_id) VALUES (?, ?)", roleID, routeID)
			if err != nil {
				return storeError("inserting binding", err)
			}
			added += affected(res)
		}
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return added, unresolved, nil
}

// LoadBindings returns every binding on an active route.
func (s *SQLiteRegistryStore) LoadBindings(ctx context.Context) ([]RouteBinding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pr.route_name, pr.method, ro.code
		 FROM route_roles rr
		 JOIN project_routes pr ON pr.id = rr.route_id
		 JOIN roles ro ON ro.id = rr.role_id
		 WHERE pr.is_active = 1`)
	if err != nil {
		return nil, storeError("loading bindings", err)
	}
	defer rows.Close()

	var bindings []RouteBinding
	for rows.Next() {
		var name, method, code string
		if err := rows.Scan(&name, &method, &code); err != nil {
			return nil, storeError("scanning binding", err)
		}
		m, ok := ParseMethod(method)
		if !ok {
			continue
		}
		bindings = append(bindings, RouteBinding{Key: RouteKey{Name: name, Method: m}, RoleCode: code})
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterating bindings", err)
	}
	return bindings, nil
}

// ListRoles returns the role catalogue, heaviest first.
func (s *SQLiteRegistryStore) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, code, name, weight, created_at FROM roles ORDER BY weight DESC, code ASC")
	if err != nil {
		return nil, storeError("listing roles", err)
	}
	defer rows.Close()

	roles := []Role{}
	for rows.Next() {
		var role Role
		var createdAt string
		if err := rows.Scan(&role.ID, &role.Code, &role.Name, &role.Weight, &createdAt); err != nil {
			return nil, storeError("scanning role", err)
		}
		role.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterating roles", err)
	}
	return roles, nil
}

func affected(res sql.Result) int {
	n, _ := res.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return int(n)
}
