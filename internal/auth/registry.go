package auth

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"sync/atomic"
	"time"
)

// paramPattern matches a {name} or {name:regex} path segment.
var paramPattern = regexp.MustCompile(`\{([^}:/]+)(?::[^}]*)?\}`)

// NormalizeRoute turns a route URI into its registry key: lower-case,
// {param} written as :param, no trailing slash, slashes replaced by
// underscores. "/api/v1/users/{id}/" and "/API/v1/users/:id" both become
// "_api_v1_users_:id".
func NormalizeRoute(uri string) string {
	s := strings.TrimSpace(uri)
	s = paramPattern.ReplaceAllString(s, ":$1")
	s = strings.ToLower(s)
	if len(s) > 1 {
		s = strings.TrimRight(s, "/")
	}
	return strings.ReplaceAll(s, "/", "_")
}

// RouteKey identifies a registry entry.
type RouteKey struct {
	Name   string
	Method Method
}

// KeyFor builds the RouteKey for a URI and method.
func KeyFor(uri string, method Method) RouteKey {
	return RouteKey{Name: NormalizeRoute(uri), Method: method}
}

func (k RouteKey) String() string {
	return k.Method.String() + " " + k.Name
}

// RouteSpec is one endpoint declared by the transport layer.
type RouteSpec struct {
	URI    string
	Method Method
}

// RouteRoleRule grants a role access to a route. An empty Methods list
// covers every method the manifest declares for the route.
type RouteRoleRule struct {
	Route   string
	Role    string
	Methods []Method
}

// Manifest is the static input to registry synchronisation.
type Manifest struct {
	Roles  []Role
	Routes []RouteSpec
	Rules  []RouteRoleRule
}

// RouteBinding grants RoleCode access to the route behind Key.
type RouteBinding struct {
	Key      RouteKey
	RoleCode string
}

// SyncReport summarises one synchronisation run.
type SyncReport struct {
	RolesAdded    int            `json:"roles_added"`
	RoutesAdded   int            `json:"routes_added"`
	BindingsAdded int            `json:"bindings_added"`
	Unresolved    []RouteBinding `json:"-"`
	Duration      time.Duration  `json:"-"`
}

// RegistryStore persists roles, route descriptors and their bindings.
// Every write is additive and idempotent.
type RegistryStore interface {
	EnsureRoles(ctx context.Context, roles []Role) (int, error)
	EnsureRoutes(ctx context.Context, routes []RouteSpec) (int, error)
	BindRoutes(ctx context.Context, bindings []RouteBinding) (added int, unresolved []RouteBinding, err error)
	LoadBindings(ctx context.Context) ([]RouteBinding, error)
}

// permissionIndex maps a route to the role codes permitted on it.
// A published index is never modified.
type permissionIndex map[RouteKey][]string

type snapshot struct {
	generation uint64
	index      permissionIndex
}

// Registry answers "which roles may call this route" from an in-memory
// snapshot. Readers never block; a reload swaps in a complete new snapshot.
type Registry struct {
	store      RegistryStore
	logger     *slog.Logger
	current    atomic.Pointer[snapshot]
	generation atomic.Uint64
}

// NewRegistry creates a registry with an empty snapshot.
func NewRegistry(store RegistryStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{store: store, logger: logger}
	r.current.Store(&snapshot{index: permissionIndex{}})
	return r
}

// Sync brings the store up to date with m and reloads the snapshot.
// Rules naming an unknown route or role are skipped with a warning.
func (r *Registry) Sync(ctx context.Context, m Manifest) (*SyncReport, error) {
	start := time.Now()
	report := &SyncReport{}

	var err error
	if report.RolesAdded, err = r.store.EnsureRoles(ctx, m.Roles); err != nil {
		return nil, fmt.Errorf("syncing roles: %w", err)
	}
	if report.RoutesAdded, err = r.store.EnsureRoutes(ctx, m.Routes); err != nil {
		return nil, fmt.Errorf("syncing routes: %w", err)
	}

	bindings := expandRules(m)
	report.BindingsAdded, report.Unresolved, err = r.store.BindRoutes(ctx, bindings)
	if err != nil {
		return nil, fmt.Errorf("syncing bindings: %w", err)
	}
	for _, b := range report.Unresolved {
		r.logger.Warn("skipping unresolved route binding", "route", b.Key.String(), "role", b.RoleCode)
	}

	if err := r.Reload(ctx); err != nil {
		return nil, err
	}

	report.Duration = time.Since(start)
	r.logger.Info("route registry synchronised",
		"roles_added", report.RolesAdded,
		"routes_added", report.RoutesAdded,
		"bindings_added", report.BindingsAdded,
		"unresolved", len(report.Unresolved),
		"duration", report.Duration,
	)
	return report, nil
}

// Reload rebuilds the snapshot from the store. When reloads overlap, the one
// that started last wins.
func (r *Registry) Reload(ctx context.Context) error {
	gen := r.generation.Add(1)

	bindings, err := r.store.LoadBindings(ctx)
	if err != nil {
		return fmt.Errorf("loading route bindings: %w", err)
	}

	index := make(permissionIndex, len(bindings))
	for _, b := range bindings {
		index[b.Key] = append(index[b.Key], b.RoleCode)
	}
	for key, roles := range index {
		slices.Sort(roles)
		index[key] = slices.Compact(roles)
	}

	next := &snapshot{generation: gen, index: index}
	for {
		cur := r.current.Load()
		if cur.generation > gen {
			return nil
		}
		if r.current.CompareAndSwap(cur, next) {
			return nil
		}
	}
}

// PermittedRoles returns the role codes bound to (uri, method). Unknown
// pairs yield an empty set.
func (r *Registry) PermittedRoles(uri string, method Method) []string {
	return slices.Clone(r.current.Load().index[KeyFor(uri, method)])
}

// Size returns the number of routes in the current snapshot.
func (r *Registry) Size() int {
	return len(r.current.Load().index)
}

func expandRules(m Manifest) []RouteBinding {
	declared := make(map[string][]Method)
	for _, rt := range m.Routes {
		name := NormalizeRoute(rt.URI)
		declared[name] = append(declared[name], rt.Method)
	}

	var bindings []RouteBinding
	for _, rule := range m.Rules {
		name := NormalizeRoute(rule.Route)
		methods := rule.Methods
		if len(methods) == 0 {
			methods = declared[name]
		}
		for _, method := range methods {
			bindings = append(bindings, RouteBinding{
				Key:      RouteKey{Name: name, Method: method},
				RoleCode: strings.ToUpper(rule.Role),
			})
		}
	}
	return bindings
}

// RoleAssigner is the account side of the default-role pass.
type RoleAssigner interface {
	AccountsWithoutRoles(ctx context.Context) ([]Account, error)
	AssignRole(ctx context.Context, accountID, roleCode string) error
}

// SyncAccountRoles gives every active account that holds no role the default
// role configured for its user type. User types without a mapping are
// skipped with a warning. It returns the number of accounts assigned.
func SyncAccountRoles(ctx context.Context, accounts RoleAssigner, defaults map[UserType]string, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	unbound, err := accounts.AccountsWithoutRoles(ctx)
	if err != nil {
		return 0, err
	}

	assigned := 0
	for _, a := range unbound {
		code, ok := defaults[a.UserType]
		if !ok {
			logger.Warn("no default role for user type", "account_id", a.ID, "user_type", a.UserType)
			continue
		}
		if err := accounts.AssignRole(ctx, a.ID, code); err != nil {
			return assigned, fmt.Errorf("assigning %s to %s: %w", code, a.ID, err)
		}
		assigned++
	}

	if assigned > 0 {
		logger.Info("default roles assigned", "accounts", assigned)
	}
	return assigned, nil
}
