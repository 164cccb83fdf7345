package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gatekeeper/internal/audit"
	"github.com/nerrad567/gatekeeper/internal/auth"
	"github.com/nerrad567/gatekeeper/internal/infrastructure/config"
	"github.com/nerrad567/gatekeeper/internal/infrastructure/database"
	"github.com/nerrad567/gatekeeper/internal/infrastructure/logging"
	_ "github.com/nerrad567/gatekeeper/migrations"
)

const (
	testSecret   = "test-secret-key-at-least-32-characters-long"
	testPassword = "correct-horse-battery"
)

var testHash = func() string {
	h, err := auth.HashPassword(testPassword)
	if err != nil {
		panic(err)
	}
	return h
}()

var testRoles = []auth.Role{
	{Code: "DEVELOPER", Name: "Developer", Weight: 100},
	{Code: "SUPER_ADMIN", Name: "Super Admin", Weight: 90},
	{Code: "HR", Name: "HR", Weight: 50},
	{Code: "TEAM_LEAD", Name: "Team Lead", Weight: 40},
	{Code: "EMPLOYEE", Name: "Employee", Weight: 10},
}

// testRules mirrors the shipped route-role table.
func testRules() []auth.RouteRoleRule {
	var rules []auth.RouteRoleRule
	for _, role := range []string{"SUPER_ADMIN", "DEVELOPER"} {
		rules = append(rules,
			auth.RouteRoleRule{Route: "/api/v1/users/create", Role: role},
			auth.RouteRoleRule{Route: "/api/v1/users/update/:id", Role: role},
			auth.RouteRoleRule{Route: "/api/v1/users/list", Role: role},
			auth.RouteRoleRule{Route: "/api/v1/users/count", Role: role},
			auth.RouteRoleRule{Route: "/api/v1/users/:id", Role: role, Methods: []auth.Method{auth.MethodGet}},
			auth.RouteRoleRule{Route: "/api/v1/users/softdelete/:id", Role: role},
			auth.RouteRoleRule{Route: "/api/v1/users/:id/roles", Role: role},
			auth.RouteRoleRule{Route: "/api/v1/registry/sync", Role: role},
			auth.RouteRoleRule{Route: "/api/v1/audit", Role: role},
		)
	}
	return append(rules,
		auth.RouteRoleRule{Route: "/api/v1/users/{id}", Role: "HR", Methods: []auth.Method{auth.MethodGet}},
		auth.RouteRoleRule{Route: "/api/v1/users/count", Role: "HR"},
	)
}

var testPolicy = auth.Policy{
	Token:   auth.TokenPolicy{Secret: []byte(testSecret), TTL: time.Hour},
	Lockout: auth.LockoutPolicy{MaxRetry: 3, LockoutWindow: 20 * time.Minute},
	Reset:   auth.ResetPolicy{OTPTTL: 20 * time.Minute, Channels: []string{"email"}},
	Access: auth.AccessTable{
		auth.PlatformWeb:    {auth.UserTypeSuperAdmin, auth.UserTypeEmployee, auth.UserTypeTeamLead, auth.UserTypeHR},
		auth.PlatformMobile: {auth.UserTypeEmployee},
	},
	DefaultRoles: map[auth.UserType]string{
		auth.UserTypeSuperAdmin: "SUPER_ADMIN",
		auth.UserTypeEmployee:   "EMPLOYEE",
		auth.UserTypeTeamLead:   "TEAM_LEAD",
		auth.UserTypeHR:         "HR",
	},
	RegistrationUserType: auth.UserTypeEmployee,
}

// captureNotifier keeps every reset notice instead of delivering it.
type captureNotifier struct {
	mu      sync.Mutex
	notices []auth.ResetNotice
}

func (n *captureNotifier) NotifyReset(_ context.Context, notice auth.ResetNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return nil
}

func (n *captureNotifier) last(t *testing.T) auth.ResetNotice {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.notices) == 0 {
		t.Fatal("no reset notice was sent")
	}
	return n.notices[len(n.notices)-1]
}

type healthFunc func(ctx context.Context) error

func (f healthFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// testEnv is a fully wired server over a temporary SQLite database.
type testEnv struct {
	srv       *Server
	router    http.Handler
	accounts  *auth.SQLiteAccountRepository
	tokens    *auth.TokenService
	registry  *auth.Registry
	notifier  *captureNotifier
	auditRepo *audit.SQLiteRepository
}

type envOption func(*Deps)

func withRateLimit(perMinute, burst int) envOption {
	return func(d *Deps) {
		d.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMinute: perMinute, Burst: burst}
	}
}

func withHealth(name string, hc HealthChecker) envOption {
	return func(d *Deps) { d.Health[name] = hc }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "api.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("applying migrations: %v", err)
	}

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"}, "test")
	slogger := log.Logger

	accounts := auth.NewAccountRepository(db.DB)
	registry := auth.NewRegistry(auth.NewRegistryStore(db.DB), slogger)
	manifest := BuildManifest(testRoles, testRules())
	if _, err := registry.Sync(ctx, manifest); err != nil {
		t.Fatalf("registry sync: %v", err)
	}

	tokens, err := auth.NewTokenService(testPolicy.Token)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	notifier := &captureNotifier{}
	auditRepo := audit.NewSQLiteRepository(db.DB)
	recorder := audit.NewRecorder(auditRepo, 0, slogger)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		recorder.Run(runCtx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	svc, err := auth.NewService(auth.ServiceDeps{
		Accounts: accounts,
		Guard:    auth.NewLoginGuard(accounts, testPolicy.Lockout, slogger),
		Tokens:   tokens,
		Reset:    auth.NewResetFlow(accounts, accounts, notifier, testPolicy.Reset, slogger),
		Policy:   testPolicy,
		Events:   recorder,
		Logger:   slogger,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	deps := Deps{
		Config:       config.APIConfig{Host: "127.0.0.1", Port: 0},
		Logger:       log,
		Auth:         svc,
		Authorizer:   auth.NewAuthorizer(tokens, registry, accounts, testPolicy.Access, slogger),
		Accounts:     accounts,
		Registry:     registry,
		Manifest:     manifest,
		QueryTimeout: 5 * time.Second,
		AuditRepo:    auditRepo,
		Audit:        recorder,
		Health:       map[string]HealthChecker{"database": db},
		Version:      "test",
	}
	for _, opt := range opts {
		opt(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	return &testEnv{
		srv:       srv,
		router:    srv.buildRouter(),
		accounts:  accounts,
		tokens:    tokens,
		registry:  registry,
		notifier:  notifier,
		auditRepo: auditRepo,
	}
}

// waitForAudit polls until an entry with action has been written.
func (e *testEnv) waitForAudit(t *testing.T, action string) []audit.AuditLog {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		result, err := e.auditRepo.List(context.Background(), audit.Filter{Action: action})
		if err != nil {
			t.Fatalf("listing audit logs: %v", err)
		}
		if len(result.Logs) > 0 {
			return result.Logs
		}
		if time.Now().After(deadline) {
			t.Fatalf("no %q audit entry written", action)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// seedAccount creates an active account holding roles.
func (e *testEnv) seedAccount(t *testing.T, username string, userType auth.UserType, roles ...string) *auth.Account {
	t.Helper()
	a := &auth.Account{
		Username:     username,
		Email:        username + "@example.test",
		PasswordHash: testHash,
		UserType:     userType,
		IsActive:     true,
	}
	if err := e.accounts.Create(context.Background(), a, roles...); err != nil {
		t.Fatalf("creating %s: %v", username, err)
	}
	return a
}

// tokenFor issues a session token without going through login.
func (e *testEnv) tokenFor(t *testing.T, a *auth.Account, platform auth.Platform) string {
	t.Helper()
	issued, err := e.tokens.Issue(a.ID, a.UserType, platform)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return issued.Token
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.RemoteAddr = "192.0.2.10:40000"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// errorCode decodes the error code from a rejection body.
func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding error body %q: %v", w.Body.String(), err)
	}
	return resp.Error.Code
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding body %q: %v", w.Body.String(), err)
	}
}
