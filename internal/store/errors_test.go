package store

import (
	"errors"
	"fmt"
	"testing"
)

func TestInsufficientStockErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("add line: %w", &InsufficientStockError{ProductID: 3, BranchID: 1, Available: 6, Requested: 10})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected errors.Is to match ErrInsufficientStock")
	}
	var detail *InsufficientStockError
	if !errors.As(err, &detail) || detail.Available != 6 || detail.Requested != 10 {
		t.Fatalf("expected available/requested detail, got %+v", detail)
	}
	if KindOf(err) != KindInsufficientStock {
		t.Fatalf("unexpected kind %s", KindOf(err))
	}
}

func TestKindOf(t *testing.T) {
	if KindOf(Invalid("quantity must be positive")) != KindValidation {
		t.Fatalf("expected validation kind")
	}
	if KindOf(fmt.Errorf("void: %w", ErrAlreadyVoided)) != KindAlreadyVoided {
		t.Fatalf("expected already voided kind")
	}
	if KindOf(errors.New("boom")) != KindInternal {
		t.Fatalf("expected internal kind")
	}
}
