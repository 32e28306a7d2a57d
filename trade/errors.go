/*
errors.go - Orchestrator error taxonomy

PURPOSE:
  Every failure mode of the creation/edit/cancel/add-payment pipelines is a
  distinct, stable error kind. The API layer never collapses these into a
  generic failure; the caller renders field-specific messages from them.
*/
package trade

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/orenretail/ledger-engine/inventory"
	"github.com/orenretail/ledger-engine/ledger"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrValidation is the base for malformed-payload failures.
	ErrValidation = errors.New("validation failed")

	// ErrDateNotToday: money-moving transactions may only be dated today at
	// creation time. A business rule, not a technical limitation.
	ErrDateNotToday = errors.New("business date must be today")

	// ErrQuantityInvalid: a line quantity is negative or the line has no
	// units at all.
	ErrQuantityInvalid = errors.New("invalid quantity")

	ErrPaymentExceedsTotal = errors.New("payments exceed transaction total")

	ErrEditWindowExpired = errors.New("edit window expired")

	// ErrCostImmutable: line-item cost fields cannot change on edit.
	ErrCostImmutable = errors.New("line item cost is immutable")

	ErrAlreadyCancelled = errors.New("transaction already cancelled")

	ErrCancelWindowExpired = errors.New("cancellation window expired")

	// ErrRefundRequired: cancelling a transaction with money paid needs an
	// explicit refund target. There is no default.
	ErrRefundRequired = errors.New("refund target required")

	// ErrRefundTargetInvalid: refunds go to cash or a bank account only.
	ErrRefundTargetInvalid = errors.New("invalid refund target")

	ErrTransactionNotPending = errors.New("transaction is not pending")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// PaymentExceedsTotalError details the overshoot.
type PaymentExceedsTotalError struct {
	Total decimal.Decimal
	Paid  decimal.Decimal
}

func (e *PaymentExceedsTotalError) Error() string {
	return fmt.Sprintf("payments %s exceed total %s", e.Paid.StringFixed(2), e.Total.StringFixed(2))
}

func (e *PaymentExceedsTotalError) Unwrap() error { return ErrPaymentExceedsTotal }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether err is any of the missing-resource kinds.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, inventory.ErrProductNotFound) ||
		errors.Is(err, ledger.ErrTargetNotFound)
}

// IsClientError reports whether err is caused by the caller's input or the
// transaction's current state, as opposed to an internal failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrDateNotToday) ||
		errors.Is(err, ErrQuantityInvalid) ||
		errors.Is(err, ErrPaymentExceedsTotal) ||
		errors.Is(err, ErrEditWindowExpired) ||
		errors.Is(err, ErrCostImmutable) ||
		errors.Is(err, ErrAlreadyCancelled) ||
		errors.Is(err, ErrCancelWindowExpired) ||
		errors.Is(err, ErrRefundRequired) ||
		errors.Is(err, ErrRefundTargetInvalid) ||
		errors.Is(err, ErrTransactionNotPending) ||
		errors.Is(err, ledger.ErrInvalidAmount) ||
		errors.Is(err, ledger.ErrInvalidTarget) ||
		errors.Is(err, ledger.ErrInsufficientBalance) ||
		errors.Is(err, inventory.ErrStockWouldGoNegative)
}
