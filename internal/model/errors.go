package model

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the store and the services.  Handlers map
// these to HTTP responses; callers should compare with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidState       = errors.New("invalid state")
	ErrQuantityOutOfRange = errors.New("quantity out of range")
	ErrTTLOutOfRange      = errors.New("hold duration out of range")
	ErrExpiredHold        = errors.New("reservation hold expired")

	// ErrInsufficientInventory is matched by *InsufficientInventoryError.
	ErrInsufficientInventory = errors.New("insufficient inventory")

	ErrEventNotFound       = fmt.Errorf("event %w", ErrNotFound)
	ErrTicketTypeNotFound  = fmt.Errorf("ticket type %w", ErrNotFound)
	ErrReservationNotFound = fmt.Errorf("reservation %w", ErrNotFound)
	ErrOrderNotFound       = fmt.Errorf("order %w", ErrNotFound)

	ErrNotActive        = fmt.Errorf("reservation not active: %w", ErrInvalidState)
	ErrAlreadyConverted = fmt.Errorf("reservation already converted: %w", ErrInvalidState)
	ErrAlreadyCancelled = fmt.Errorf("reservation already cancelled: %w", ErrInvalidState)
	ErrDuplicateHold    = fmt.Errorf("reservation listed twice: %w", ErrInvalidState)
	ErrOrderSettled     = fmt.Errorf("order already settled: %w", ErrInvalidState)

	ErrHolderCountMismatch = errors.New("holder count does not match reservation quantity")
	ErrInvalidOutcome      = errors.New("invalid settlement outcome")

	// ErrContention marks a transaction the store aborted on a deadlock
	// or lock wait timeout.  Nothing was written; the request may be
	// repeated.
	ErrContention = errors.New("transaction aborted by lock contention")
)

// InsufficientInventoryError reports how many units were left when a
// hold was rejected.
type InsufficientInventoryError struct {
	TicketTypeID string
	Requested    int
	Available    int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory for ticket type %s: requested %d, available %d",
		e.TicketTypeID, e.Requested, e.Available)
}

// Is makes errors.Is(err, ErrInsufficientInventory) true.
func (e *InsufficientInventoryError) Is(target error) bool {
	return target == ErrInsufficientInventory
}
