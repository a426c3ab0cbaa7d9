package ledger

import (
	"errors"
	"fmt"
)

// Reservation failure taxonomy. Validation errors are returned synchronously
// and never retried by the engine itself; the caller decides whether a retry
// makes sense (typically only for ErrConcurrentModification and ErrTimeout).
var (
	// ErrInsufficientStock means the requested quantity exceeds available
	// stock. Returned without side effects; wrap with stock details via
	// insufficientStock.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrProductInactive means the product is not purchasable, including
	// products deactivated while the reservation was in flight.
	ErrProductInactive = errors.New("product is inactive")

	// ErrProductNotFound means the product does not exist.
	ErrProductNotFound = errors.New("product not found")

	// ErrConcurrentModification means an optimistic stock edit lost the
	// race every attempt. The state is unchanged; callers may retry.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrTimeout means the reservation could not acquire its lock or
	// commit within the configured bound.
	ErrTimeout = errors.New("reservation timed out")

	// ErrStorageUnavailable means the transaction aborted on a storage
	// failure, leaving state unchanged.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrInvalidQuantity means the requested quantity is not a positive
	// integer.
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
)

func insufficientStock(requested, available int) error {
	return fmt.Errorf("%w: requested %d, available %d", ErrInsufficientStock, requested, available)
}
