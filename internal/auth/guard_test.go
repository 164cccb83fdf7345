package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestGuard(t *testing.T, policy LockoutPolicy) (*LoginGuard, *SQLiteAccountRepository, *fakeClock) {
	t.Helper()
	db := testDB(t)
	repo := NewAccountRepository(db)
	clock := newFakeClock()
	repo.now = clock.Now
	guard := NewLoginGuard(repo, policy, nil)
	guard.now = clock.Now
	return guard, repo, clock
}

func TestLoginGuard_LocksAfterMaxRetry(t *testing.T) {
	guard, repo, clock := newTestGuard(t, LockoutPolicy{MaxRetry: 3, LockoutWindow: 20 * time.Minute})
	ctx := context.Background()
	account := seedTestAccount(t, repo.db, "alice", UserTypeEmployee)

	for i := 1; i <= 2; i++ {
		state, err := guard.RecordFailure(ctx, account.ID)
		if err != nil {
			t.Fatalf("RecordFailure() #%d error = %v", i, err)
		}
		if state.FailedAttempts != i {
			t.Errorf("FailedAttempts after #%d = %d, want %d", i, state.FailedAttempts, i)
		}
		if err := guard.CheckAllowed(ctx, account.ID); err != nil {
			t.Fatalf("CheckAllowed() after %d failures error = %v", i, err)
		}
	}

	state, err := guard.RecordFailure(ctx, account.ID)
	if err != nil {
		t.Fatalf("RecordFailure() #3 error = %v", err)
	}
	if state.FailedAttempts != 0 {
		t.Errorf("FailedAttempts after lockout = %d, want 0 (reset)", state.FailedAttempts)
	}
	if !state.LockedAt(clock.Now()) {
		t.Fatal("account should be locked after MaxRetry failures")
	}

	clock.Advance(5 * time.Minute)
	err = guard.CheckAllowed(ctx, account.ID)
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("CheckAllowed() error = %v, want ErrAccountLocked", err)
	}
	retry, ok := RetryAfter(err)
	if !ok || retry != 15*time.Minute {
		t.Errorf("RetryAfter() = %v, %v; want 15m, true", retry, ok)
	}

	clock.Advance(15 * time.Minute)
	if err := guard.CheckAllowed(ctx, account.ID); err != nil {
		t.Errorf("CheckAllowed() after window error = %v", err)
	}
}

func TestLoginGuard_ConcurrentFailuresNeverUndercount(t *testing.T) {
	guard, repo, _ := newTestGuard(t, LockoutPolicy{MaxRetry: 10, LockoutWindow: time.Minute})
	ctx := context.Background()
	account := seedTestAccount(t, repo.db, "bob", UserTypeEmployee)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := guard.RecordFailure(ctx, account.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("RecordFailure() error = %v", err)
		}
	}

	state, err := repo.LockState(ctx, account.ID)
	if err != nil {
		t.Fatalf("LockState() error = %v", err)
	}
	if state.FailedAttempts != 2 {
		t.Errorf("FailedAttempts = %d, want 2", state.FailedAttempts)
	}
}

func TestLoginGuard_RecordSuccessClears(t *testing.T) {
	guard, repo, _ := newTestGuard(t, LockoutPolicy{MaxRetry: 2})
	ctx := context.Background()
	account := seedTestAccount(t, repo.db, "carol", UserTypeEmployee)

	for range 2 {
		if _, err := guard.RecordFailure(ctx, account.ID); err != nil {
			t.Fatalf("RecordFailure() error = %v", err)
		}
	}
	if err := guard.CheckAllowed(ctx, account.ID); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("CheckAllowed() error = %v, want ErrAccountLocked", err)
	}

	if err := guard.RecordSuccess(ctx, account.ID); err != nil {
		t.Fatalf("RecordSuccess() error = %v", err)
	}

	state, err := repo.LockState(ctx, account.ID)
	if err != nil {
		t.Fatalf("LockState() error = %v", err)
	}
	if state.FailedAttempts != 0 || state.LockedUntil != nil {
		t.Errorf("state after success = %+v, want cleared", state)
	}
}

func TestLoginGuard_StateSurvivesNewGuard(t *testing.T) {
	guard, repo, clock := newTestGuard(t, LockoutPolicy{MaxRetry: 1, LockoutWindow: time.Hour})
	ctx := context.Background()
	account := seedTestAccount(t, repo.db, "dave", UserTypeEmployee)

	if _, err := guard.RecordFailure(ctx, account.ID); err != nil {
		t.Fatalf("RecordFailure() error = %v", err)
	}

	restarted := NewLoginGuard(repo, LockoutPolicy{MaxRetry: 1, LockoutWindow: time.Hour}, nil)
	restarted.now = clock.Now
	if err := restarted.CheckAllowed(ctx, account.ID); !errors.Is(err, ErrAccountLocked) {
		t.Errorf("CheckAllowed() on fresh guard error = %v, want ErrAccountLocked", err)
	}
}

func TestLoginGuard_UnknownAccount(t *testing.T) {
	guard, _, _ := newTestGuard(t, LockoutPolicy{})
	ctx := context.Background()

	if err := guard.CheckAllowed(ctx, "acc-missing"); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("CheckAllowed() error = %v, want ErrAccountNotFound", err)
	}
	if _, err := guard.RecordFailure(ctx, "acc-missing"); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("RecordFailure() error = %v, want ErrAccountNotFound", err)
	}
}

func TestLoginGuard_DefaultPolicy(t *testing.T) {
	guard := NewLoginGuard(nil, LockoutPolicy{}, nil)
	if guard.policy.MaxRetry != DefaultMaxRetry {
		t.Errorf("MaxRetry = %d, want %d", guard.policy.MaxRetry, DefaultMaxRetry)
	}
	if guard.policy.LockoutWindow != DefaultLockoutWindow {
		t.Errorf("LockoutWindow = %v, want %v", guard.policy.LockoutWindow, DefaultLockoutWindow)
	}
}
