package auth

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/gatekeeper/internal/infrastructure/database"
	_ "github.com/nerrad567/gatekeeper/migrations"
)

// testDB creates a temporary SQLite database with all migrations applied.
// The database file is cleaned up when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	// Use a temp file so WAL mode works (in-memory doesn't support it)
	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "auth.db"),
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
	return db.DB
}

var testRoles = []Role{
	{Code: "DEVELOPER", Name: "Developer", Weight: 100},
	{Code: "SUPER_ADMIN", Name: "Super Admin", Weight: 90},
	{Code: "HR", Name: "HR", Weight: 50},
	{Code: "TEAM_LEAD", Name: "Team Lead", Weight: 40},
	{Code: "EMPLOYEE", Name: "Employee", Weight: 10},
}

// seedTestRoles inserts the standard role catalogue.
func seedTestRoles(t *testing.T, db *sql.DB) {
	t.Helper()
	if _, err := NewRegistryStore(db).EnsureRoles(context.Background(), testRoles); err != nil {
		t.Fatalf("seeding roles: %v", err)
	}
}

// testPassword is the plaintext behind every seeded test account.
const testPassword = "correct-horse-battery"

// testHash is computed once; Argon2id is too slow to run per test account.
var testHash = func() string {
	h, err := HashPassword(testPassword)
	if err != nil {
		panic(err)
	}
	return h
}()

// seedTestAccount creates an active account with the given roles.
func seedTestAccount(t *testing.T, db *sql.DB, username string, userType UserType, roles ...string) *Account {
	t.Helper()
	account := &Account{
		Username:     username,
		Email:        username + "@example.test",
		PasswordHash: testHash,
		UserType:     userType,
		IsActive:     true,
	}
	if err := NewAccountRepository(db).Create(context.Background(), account, roles...); err != nil {
		t.Fatalf("seeding account %s: %v", username, err)
	}
	return account
}

// fakeClock is a settable time source.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }
