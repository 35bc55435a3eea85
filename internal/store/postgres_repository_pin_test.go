package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// testRepository connects to the database named by TEST_DATABASE_URL (schema
// from migrations/001_init.sql applied) or skips the test.
func testRepository(t *testing.T) *PostgresRepository {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return NewPostgresRepository(pool)
}

func insertTestAccount(t *testing.T, repo *PostgresRepository, failedAttempts int, lockedUntil *time.Time) uuid.UUID {
	t.Helper()
	id := uuid.New()
	phone := fmt.Sprintf("9%09d", time.Now().UnixNano()%1_000_000_000)
	_, err := repo.db.Exec(context.Background(),
		`INSERT INTO accounts (id, phone_number, full_name, balance, pin_failed_attempts, pin_locked_until)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, phone, "Test User", int64(0), failedAttempts, lockedUntil,
	)
	if err != nil {
		t.Fatalf("insert account: %v", err)
	}
	t.Cleanup(func() {
		_, _ = repo.db.Exec(context.Background(), `DELETE FROM accounts WHERE id = $1`, id)
	})
	return id
}

func TestRecordPinFailure_LateFailureKeepsActiveLock(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	// Two attempts already recorded; the next failure locks the account.
	accountID := insertTestAccount(t, repo, 2, nil)

	locked, err := repo.RecordPinFailure(ctx, accountID, 3, 15*time.Minute)
	if err != nil {
		t.Fatalf("RecordPinFailure: %v", err)
	}
	if locked.PinLockedUntil == nil || !locked.PinLockedUntil.After(time.Now()) {
		t.Fatal("expected the third failure to apply a lock")
	}
	if locked.PinFailedAttempts != 0 {
		t.Fatalf("expected the counter reset on lock, got %d", locked.PinFailedAttempts)
	}

	// A concurrent wrong-PIN submission that passed the lockout check before
	// the lock was written records its failure afterwards. The fresh lock
	// must survive that write.
	late, err := repo.RecordPinFailure(ctx, accountID, 3, 15*time.Minute)
	if err != nil {
		t.Fatalf("RecordPinFailure: %v", err)
	}
	if late.PinLockedUntil == nil || !late.PinLockedUntil.After(time.Now()) {
		t.Fatal("a failure recorded after the lock was applied erased the active lock")
	}
	if late.PinFailedAttempts != 1 {
		t.Fatalf("expected the late failure to count as 1, got %d", late.PinFailedAttempts)
	}
	if !late.PinLockedUntil.Equal(*locked.PinLockedUntil) {
		t.Errorf("expected the lock deadline to be preserved, got %v then %v", locked.PinLockedUntil, late.PinLockedUntil)
	}
}

func TestRecordPinFailure_ExpiredLockIsCleared(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	expired := time.Now().Add(-time.Minute)
	accountID := insertTestAccount(t, repo, 0, &expired)

	updated, err := repo.RecordPinFailure(ctx, accountID, 3, 15*time.Minute)
	if err != nil {
		t.Fatalf("RecordPinFailure: %v", err)
	}
	if updated.PinLockedUntil != nil {
		t.Fatalf("expected the expired lock to clear, got %v", updated.PinLockedUntil)
	}
	if updated.PinFailedAttempts != 1 {
		t.Fatalf("expected 1 failed attempt, got %d", updated.PinFailedAttempts)
	}
}
