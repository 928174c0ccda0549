package store

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrInventoryRecordMissing = errors.New("inventory record missing")
	ErrAlreadyVoided          = errors.New("already voided")
	ErrReasonRequired         = errors.New("void reason required")
	ErrForbidden              = errors.New("forbidden")
	ErrValidation             = errors.New("validation error")
	ErrWriteConflict          = errors.New("write conflict, retry the request")
	ErrUnauthenticated        = errors.New("unauthenticated")
)

// InsufficientStockError reports how much stock was available for a request.
type InsufficientStockError struct {
	ProductID int64
	BranchID  int64
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: available %d, requested %d", e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Kind names an error in the business taxonomy. Unknown errors are "Internal".
type Kind string

const (
	KindNotFound               Kind = "NotFound"
	KindInsufficientStock      Kind = "InsufficientStock"
	KindInventoryRecordMissing Kind = "InventoryRecordMissing"
	KindAlreadyVoided          Kind = "AlreadyVoided"
	KindReasonRequired         Kind = "ReasonRequired"
	KindForbidden              Kind = "Forbidden"
	KindValidation             Kind = "ValidationError"
	KindWriteConflict          Kind = "WriteConflict"
	KindUnauthenticated        Kind = "Unauthenticated"
	KindInternal               Kind = "Internal"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrNotFound, KindNotFound},
	{ErrInsufficientStock, KindInsufficientStock},
	{ErrInventoryRecordMissing, KindInventoryRecordMissing},
	{ErrAlreadyVoided, KindAlreadyVoided},
	{ErrReasonRequired, KindReasonRequired},
	{ErrForbidden, KindForbidden},
	{ErrValidation, KindValidation},
	{ErrWriteConflict, KindWriteConflict},
	{ErrUnauthenticated, KindUnauthenticated},
}

func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
