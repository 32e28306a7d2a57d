/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All ledger-level error types in one place. The trade package wraps these
  with orchestration context; the api package maps them to HTTP statuses.

USAGE:
  if errors.Is(err, ledger.ErrInsufficientBalance) {
      var ib *ledger.InsufficientBalanceError
      errors.As(err, &ib) // target, available, requested
  }
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned when a ledger write or payment carries a
	// zero or negative amount.
	ErrInvalidAmount = errors.New("amount must be greater than zero")

	// ErrInsufficientBalance is returned when a payment exceeds the target's
	// balance as of that date's snapshot.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrTargetNotFound is returned when a bank account or card referenced by
	// a payment target does not exist.
	ErrTargetNotFound = errors.New("payment target not found")

	// ErrInvalidTarget is returned for a structurally malformed target
	// (e.g. bank kind without an account id).
	ErrInvalidTarget = errors.New("invalid payment target")

	// ErrSnapshotNotFound is returned by snapshot stores for a date with no
	// stored snapshot. The calculator treats it as "compute from history".
	ErrSnapshotNotFound = errors.New("closing balance snapshot not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError details a balance shortage on one target.
type InsufficientBalanceError struct {
	Target    PaymentTarget
	Date      Date
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance on %s as of %s: available %s, requested %s",
		e.Target, e.Date, e.Available.StringFixed(2), e.Requested.StringFixed(2))
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// InvalidAmountError details a non-positive amount.
type InvalidAmountError struct {
	Amount decimal.Decimal
	What   string // "payment", "ledger entry", ...
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid %s amount %s: %v", e.What, e.Amount, ErrInvalidAmount)
}

func (e *InvalidAmountError) Unwrap() error { return ErrInvalidAmount }
