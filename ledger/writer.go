/*
writer.go - Append-only ledger writer

PURPOSE:
  The Writer is the single entry point for recording balance movements.
  Every purchase payment, sale payment, refund, and manual adjustment
  becomes one immutable Entry.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: no update, no delete (compensating rollback excepted)
  2. POSITIVE AMOUNTS: direction carries the sign, amounts are always > 0
  3. NO SUFFICIENCY CHECK: whether the target can afford the movement is
     the orchestrator's concern, checked against the Calculator BEFORE
     the write

  Multiple entries per source are expected: one transaction paid in three
  installments produces three rows.
*/
package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RecordInput carries everything needed to append one entry.
type RecordInput struct {
	Date      Date
	Target    PaymentTarget
	Amount    decimal.Decimal
	Direction Direction
	Source    SourceTag
	SourceID  string
	Actor     string
}

// Writer appends entries to an EntryStore.
type Writer struct {
	entries EntryStore
	clock   Clock
}

func NewWriter(entries EntryStore, clock Clock) *Writer {
	return &Writer{entries: entries, clock: clock}
}

// Record validates and appends one entry.
func (w *Writer) Record(ctx context.Context, in RecordInput) (Entry, error) {
	if !in.Amount.IsPositive() {
		return Entry{}, &InvalidAmountError{Amount: in.Amount, What: "ledger entry"}
	}
	if !in.Target.Valid() {
		return Entry{}, fmt.Errorf("%w: %s", ErrInvalidTarget, in.Target)
	}

	e := Entry{
		ID:        uuid.NewString(),
		Date:      in.Date,
		Target:    in.Target,
		Amount:    RoundMoney(in.Amount),
		Direction: in.Direction,
		Source:    in.Source,
		SourceID:  in.SourceID,
		Actor:     in.Actor,
		CreatedAt: w.clock.Now(),
	}

	if err := w.entries.AppendEntry(ctx, e); err != nil {
		return Entry{}, fmt.Errorf("append ledger entry: %w", err)
	}
	return e, nil
}
