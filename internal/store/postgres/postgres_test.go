package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"tallerpos/backend/internal/store"
)

func TestConflictRetriedOnce(t *testing.T) {
	calls := 0
	err := withConflictRetry(func() error {
		calls++
		if calls == 1 {
			return &pgconn.PgError{Code: "23505"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected the retry to succeed, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestRepeatedConflictBecomesWriteConflict(t *testing.T) {
	for _, code := range []string{"23505", "40001", "40P01"} {
		calls := 0
		err := withConflictRetry(func() error {
			calls++
			return fmt.Errorf("insert sale: %w", &pgconn.PgError{Code: code})
		})
		if !errors.Is(err, store.ErrWriteConflict) {
			t.Fatalf("%s: expected ErrWriteConflict, got %v", code, err)
		}
		if calls != 2 {
			t.Fatalf("%s: expected exactly one retry, got %d attempts", code, calls)
		}
	}
}

func TestOtherErrorsAreNotRetried(t *testing.T) {
	domainErr := &store.InsufficientStockError{Available: 1, Requested: 2}
	calls := 0
	err := withConflictRetry(func() error {
		calls++
		return domainErr
	})
	if !errors.Is(err, store.ErrInsufficientStock) || calls != 1 {
		t.Fatalf("expected one attempt returning the stock error, got %d attempts and %v", calls, err)
	}

	calls = 0
	err = withConflictRetry(func() error {
		calls++
		return &pgconn.PgError{Code: "23503"}
	})
	if calls != 1 || errors.Is(err, store.ErrWriteConflict) {
		t.Fatalf("foreign key violations must not be retried, got %d attempts and %v", calls, err)
	}
}
