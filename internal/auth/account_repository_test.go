package auth

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

func TestAccountRepository_CreateAndGet(t *testing.T) {
	db := testDB(t)
	seedTestRoles(t, db)
	repo := NewAccountRepository(db)
	ctx := context.Background()

	account := &Account{
		Username:     "paula",
		Email:        "Paula@Example.test",
		PasswordHash: testHash,
		UserType:     UserTypeTeamLead,
		IsActive:     true,
	}
	if err := repo.Create(ctx, account, "TEAM_LEAD", "employee"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if account.ID == "" || account.CreatedAt.IsZero() {
		t.Fatalf("Create() did not populate ID/CreatedAt: %+v", account)
	}

	byID, err := repo.GetByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if byID.Username != "paula" || byID.UserType != UserTypeTeamLead || !byID.IsActive {
		t.Errorf("GetByID() = %+v", byID)
	}

	for _, ident := range []string{"paula", "paula@example.test", " PAULA@EXAMPLE.TEST "} {
		got, err := repo.GetByIdentifier(ctx, ident)
		if err != nil {
			t.Fatalf("GetByIdentifier(%q) error = %v", ident, err)
		}
		if got.ID != account.ID {
			t.Errorf("GetByIdentifier(%q) = %s, want %s", ident, got.ID, account.ID)
		}
	}

	roles, err := repo.RolesForAccount(ctx, account.ID)
	if err != nil {
		t.Fatalf("RolesForAccount() error = %v", err)
	}
	if want := []string{"TEAM_LEAD", "EMPLOYEE"}; !slices.Equal(roles, want) {
		t.Errorf("roles = %v, want %v (heaviest first)", roles, want)
	}
}

func TestAccountRepository_EmailUniqueIgnoringCase(t *testing.T) {
	repo := NewAccountRepository(testDB(t))
	ctx := context.Background()

	first := &Account{Username: "alice", Email: "Alice@Example.test", PasswordHash: testHash, UserType: UserTypeEmployee, IsActive: true}
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create(alice) error = %v", err)
	}

	variant := &Account{Username: "bob", Email: "alice@example.test", PasswordHash: testHash, UserType: UserTypeEmployee, IsActive: true}
	if err := repo.Create(ctx, variant); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("Create(bob) with case-variant email error = %v, want ErrAccountExists", err)
	}
	if _, err := repo.GetByIdentifier(ctx, "bob"); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("GetByIdentifier(bob) error = %v, want ErrAccountNotFound", err)
	}

	for _, ident := range []string{"Alice@Example.test", "alice@example.test", "ALICE@EXAMPLE.TEST"} {
		got, err := repo.GetByIdentifier(ctx, ident)
		if err != nil {
			t.Fatalf("GetByIdentifier(%q) error = %v", ident, err)
		}
		if got.ID != first.ID {
			t.Errorf("GetByIdentifier(%q) = %s, want %s", ident, got.ID, first.ID)
		}
	}
}

func TestAccountRepository_UpdatePasswordVoidsResetCode(t *testing.T) {
	db := testDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()
	account := seedTestAccount(t, db, "carol", UserTypeEmployee)

	expires := time.Now().Add(time.Hour)
	if err := repo.StoreResetOTP(ctx, account.ID, hashOTP(account.ID, "123456"), expires); err != nil {
		t.Fatalf("StoreResetOTP() error = %v", err)
	}
	if err := repo.UpdatePassword(ctx, account.ID, testHash); err != nil {
		t.Fatalf("UpdatePassword() error = %v", err)
	}

	stored, err := repo.GetByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if stored.ResetOTPHash != "" || stored.ResetOTPExpiresAt != nil {
		t.Errorf("reset code survived a password change: hash=%q expires=%v", stored.ResetOTPHash, stored.ResetOTPExpiresAt)
	}
}

func TestAccountRepository_CreateUnknownRoleRollsBack(t *testing.T) {
	db := testDB(t)
	seedTestRoles(t, db)
	repo := NewAccountRepository(db)
	ctx := context.Background()

	account := &Account{Username: "quinn", PasswordHash: testHash, UserType: UserTypeEmployee, IsActive: true}
	err := repo.Create(ctx, account, "EMPLOYEE", "NOT_A_ROLE")
	if !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("Create() error = %v, want ErrRoleNotFound", err)
	}
	if _, err := repo.GetByIdentifier(ctx, "quinn"); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("account should not exist after rollback, GetByIdentifier() error = %v", err)
	}
}

func TestAccountRepository_NotFound(t *testing.T) {
	repo := NewAccountRepository(testDB(t))
	ctx := context.Background()

	if _, err := repo.GetByID(ctx, "acc-missing"); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("GetByID() error = %v, want ErrAccountNotFound", err)
	}
	if _, err := repo.GetByIdentifier(ctx, ""); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("GetByIdentifier(\"\") error = %v, want ErrAccountNotFound", err)
	}
	if err := repo.UpdatePassword(ctx, "acc-missing", testHash); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("UpdatePassword() error = %v, want ErrAccountNotFound", err)
	}
	if err := repo.SoftDelete(ctx, "acc-missing"); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("SoftDelete() error = %v, want ErrAccountNotFound", err)
	}
	if err := repo.AssignRole(ctx, "acc-missing", "HR"); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("AssignRole() error = %v, want ErrAccountNotFound", err)
	}
}

func TestAccountRepository_ListAndCount(t *testing.T) {
	db := testDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()

	seedTestAccount(t, db, "r1", UserTypeEmployee)
	seedTestAccount(t, db, "r2", UserTypeEmployee)
	hr := seedTestAccount(t, db, "r3", UserTypeHR)
	if err := repo.SoftDelete(ctx, hr.ID); err != nil {
		t.Fatalf("SoftDelete() error = %v", err)
	}

	tests := []struct {
		name   string
		filter AccountFilter
		want   int
	}{
		{"live accounts", AccountFilter{}, 2},
		{"including deleted", AccountFilter{IncludeDeleted: true}, 3},
		{"by user type", AccountFilter{UserType: UserTypeHR, IncludeDeleted: true}, 1},
		{"paged", AccountFilter{Limit: 1, Offset: 1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(list) != tt.want {
				t.Errorf("List() returned %d, want %d", len(list), tt.want)
			}
		})
	}

	count, err := repo.Count(ctx, AccountFilter{UserType: UserTypeEmployee})
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 2 {
		t.Errorf("Count(employee) = %d, want 2", count)
	}
}

func TestAccountRepository_SoftDelete(t *testing.T) {
	db := testDB(t)
	seedTestRoles(t, db)
	repo := NewAccountRepository(db)
	ctx := context.Background()
	account := seedTestAccount(t, db, "sam", UserTypeHR, "HR")

	if err := repo.SoftDelete(ctx, account.ID); err != nil {
		t.Fatalf("SoftDelete() error = %v", err)
	}

	stored, err := repo.GetByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("GetByID() after soft delete error = %v (rows are never removed)", err)
	}
	if !stored.IsDeleted || stored.IsActive || stored.CanAuthenticate() {
		t.Errorf("soft-deleted account = %+v", stored)
	}

	roles, err := repo.RolesForAccount(ctx, account.ID)
	if err != nil {
		t.Fatalf("RolesForAccount() error = %v", err)
	}
	if len(roles) != 0 {
		t.Errorf("deleted account still holds roles %v", roles)
	}

	if err := repo.SoftDelete(ctx, account.ID); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("second SoftDelete() error = %v, want ErrAccountNotFound", err)
	}
}

func TestAccountRepository_AssignAndRevokeRole(t *testing.T) {
	db := testDB(t)
	seedTestRoles(t, db)
	repo := NewAccountRepository(db)
	ctx := context.Background()
	account := seedTestAccount(t, db, "tina", UserTypeEmployee)

	for range 2 {
		if err := repo.AssignRole(ctx, account.ID, "hr"); err != nil {
			t.Fatalf("AssignRole() error = %v", err)
		}
	}
	if err := repo.AssignRole(ctx, account.ID, "NOPE"); !errors.Is(err, ErrRoleNotFound) {
		t.Errorf("AssignRole(unknown) error = %v, want ErrRoleNotFound", err)
	}

	roles, _ := repo.RolesForAccount(ctx, account.ID)
	if !slices.Equal(roles, []string{"HR"}) {
		t.Errorf("roles = %v, want [HR]", roles)
	}

	if err := repo.RevokeRole(ctx, account.ID, "HR"); err != nil {
		t.Fatalf("RevokeRole() error = %v", err)
	}
	roles, _ = repo.RolesForAccount(ctx, account.ID)
	if len(roles) != 0 {
		t.Errorf("roles after revoke = %v, want none", roles)
	}
}

func TestAccountRepository_UpdateRolesAllOrNothing(t *testing.T) {
	db := testDB(t)
	seedTestRoles(t, db)
	repo := NewAccountRepository(db)
	ctx := context.Background()
	account := seedTestAccount(t, db, "uma", UserTypeTeamLead, "TEAM_LEAD")

	err := repo.UpdateRoles(ctx, account.ID, []string{"HR", "NOPE"}, []string{"TEAM_LEAD"})
	if !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("UpdateRoles() error = %v, want ErrRoleNotFound", err)
	}
	roles, _ := repo.RolesForAccount(ctx, account.ID)
	if !slices.Equal(roles, []string{"TEAM_LEAD"}) {
		t.Errorf("roles after failed update = %v, want [TEAM_LEAD]", roles)
	}

	if err := repo.UpdateRoles(ctx, account.ID, []string{"hr"}, []string{"TEAM_LEAD"}); err != nil {
		t.Fatalf("UpdateRoles() error = %v", err)
	}
	roles, _ = repo.RolesForAccount(ctx, account.ID)
	if !slices.Equal(roles, []string{"HR"}) {
		t.Errorf("roles = %v, want [HR]", roles)
	}

	if err := repo.UpdateRoles(ctx, "acc-missing", []string{"HR"}, nil); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("UpdateRoles(missing) error = %v, want ErrAccountNotFound", err)
	}
}

func TestAccountRepository_Update(t *testing.T) {
	db := testDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()
	account := seedTestAccount(t, db, "vera", UserTypeEmployee)
	seedTestAccount(t, db, "walt", UserTypeEmployee)

	inactive, lead, email := false, UserTypeTeamLead, "vera.b@example.test"
	got, err := repo.Update(ctx, account.ID, AccountUpdate{Email: &email, UserType: &lead, IsActive: &inactive})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got.Email != email || got.UserType != UserTypeTeamLead || got.IsActive {
		t.Errorf("Update() = %+v", got)
	}
	if got.CanAuthenticate() {
		t.Error("deactivated account can still authenticate")
	}

	taken := "WALT@example.test"
	if _, err := repo.Update(ctx, account.ID, AccountUpdate{Email: &taken}); !errors.Is(err, ErrAccountExists) {
		t.Errorf("Update() to a taken email error = %v, want ErrAccountExists", err)
	}

	cleared := ""
	got, err = repo.Update(ctx, account.ID, AccountUpdate{Email: &cleared})
	if err != nil {
		t.Fatalf("Update() clearing email error = %v", err)
	}
	if got.Email != "" {
		t.Errorf("Email = %q, want cleared", got.Email)
	}

	if _, err := repo.Update(ctx, "acc-missing", AccountUpdate{IsActive: &inactive}); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrAccountNotFound", err)
	}
}
