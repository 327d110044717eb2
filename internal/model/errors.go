package model

import (
	"errors"
	"fmt"
)

// Error taxonomy of the checkout core. Every failure is typed and returned to
// the caller; none are swallowed.
var (
	// ErrNotFound means the referenced product or order does not exist or is
	// inactive. Not retryable.
	ErrNotFound = errors.New("not found")

	// ErrConflict means an optimistic version check failed: another writer
	// committed first. Retryable by the caller; the core never retries on its
	// own behalf.
	ErrConflict = errors.New("version conflict")

	// ErrLocked means an exclusive lock is held by a different actor and has
	// not expired. Retryable after a delay.
	ErrLocked = errors.New("locked by another holder")

	// ErrInvalidState means the requested transition is not allowed from the
	// record's current state, e.g. cancelling a non-pending order.
	ErrInvalidState = errors.New("invalid state for operation")
)

// InsufficientStockError reports that a requested quantity exceeds the stock
// available at validation or commit time.
type InsufficientStockError struct {
	ProductID string
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// TransactionAbortedError wraps any failure inside the atomic order-commit
// unit of work. It guarantees no partial stock decrement and no orphan order
// record exists.
type TransactionAbortedError struct {
	Cause error
}

func (e *TransactionAbortedError) Error() string {
	return fmt.Sprintf("order transaction aborted: %v", e.Cause)
}

func (e *TransactionAbortedError) Unwrap() error { return e.Cause }
