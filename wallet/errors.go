/*
errors.go - Centralized error types for the wallet engine

PURPOSE:
  All wallet-level error types in one place. Domain packages (invite,
  purchase) wrap these with additional context.

ERROR CATEGORIES:
  1. Balance errors - insufficient funds, negative-balance protection
  2. Ledger errors - idempotency, persistence failures
  3. Concurrency errors - conflicting writes detected at the store

USAGE:
  if errors.Is(err, wallet.ErrInsufficientBalance) {
      var detail *wallet.InsufficientBalanceError
      if errors.As(err, &detail) {
          // detail.Deficits carries the per-resource shortfall
      }
  }

SEE ALSO:
  - ledger.go: Produces these errors
  - invite/errors.go: Invitation-specific errors
*/
package wallet

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInsufficientBalance is returned when a consumption would take a
	// counter negative. Recoverable: the caller surfaces the deficit.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrDuplicateIdempotencyKey is returned when a transaction with the
	// same idempotency key already exists. Expected on retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrConcurrentModification is returned when a conflicting write is
	// detected during a check-then-append. Retried once at the ledger.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrUnknownResource is returned for a resource type outside the
	// three wallet counters.
	ErrUnknownResource = errors.New("unknown resource type")

	// ErrTransactionFailed is returned when a transaction cannot be
	// persisted for a non-business reason.
	ErrTransactionFailed = errors.New("transaction failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// Deficit describes a single resource shortfall.
type Deficit struct {
	Resource  ResourceType
	Required  int64
	Available int64
}

// InsufficientBalanceError reports which counters fell short and by how
// much, so the caller can prompt a purchase.
type InsufficientBalanceError struct {
	UserID   UserID
	Deficits []Deficit
}

func (e *InsufficientBalanceError) Error() string {
	parts := make([]string, len(e.Deficits))
	for i, d := range e.Deficits {
		parts[i] = fmt.Sprintf("%s: need %d, have %d", d.Resource, d.Required, d.Available)
	}
	return "insufficient balance: " + strings.Join(parts, "; ")
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input
// rather than a fault in the system.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrDuplicateIdempotencyKey) ||
		errors.Is(err, ErrUnknownResource)
}
