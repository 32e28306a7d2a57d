/*
confirmation.go - Daily reconciliation gate

PURPOSE:
  A per-calendar-day, system-wide acknowledgment that yesterday's balances
  were reviewed. One row per date; the first user to confirm satisfies the
  gate for everyone, and confirming twice is a no-op.

  The gate does not block writes itself. The surrounding layer checks
  NeedsConfirmation before accepting new money-moving transactions.

WHEN IS CONFIRMATION NEEDED?
  NeedsConfirmation(date) is true only when all of:
  - no confirmation row exists for date
  - the cutoff time of day (business rule: 06:00 local) has passed on date,
    or date is already in the past
  - there is prior-day history to reconcile (the Calculator can produce a
    non-trivial previous snapshot)
*/
package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// CutoffTime is a time of day in the business-local timezone.
type CutoffTime struct {
	Hour   int
	Minute int
}

// DefaultCutoff is the business rule: confirmation becomes due at 06:00.
var DefaultCutoff = CutoffTime{Hour: 6}

// ConfirmationStatus is the gate's full answer for one date.
type ConfirmationStatus struct {
	Date              Date
	Confirmed         bool
	Confirmation      *Confirmation
	NeedsConfirmation bool
	PreviousSnapshot  *Snapshot
}

// Gate implements the daily confirmation rules.
type Gate struct {
	confirmations ConfirmationStore
	calc          *Calculator
	clock         Clock
	cutoff        CutoffTime
}

func NewGate(confirmations ConfirmationStore, calc *Calculator, clock Clock, cutoff CutoffTime) *Gate {
	return &Gate{confirmations: confirmations, calc: calc, clock: clock, cutoff: cutoff}
}

// NeedsConfirmation reports whether date still requires an acknowledgment.
func (g *Gate) NeedsConfirmation(ctx context.Context, date Date) (bool, error) {
	if _, ok, err := g.confirmations.GetConfirmation(ctx, date); err != nil {
		return false, err
	} else if ok {
		return false, nil
	}

	today := g.clock.Today()
	if date.After(today) {
		return false, nil
	}
	if date.Equal(today) && !g.cutoffPassed() {
		return false, nil
	}

	// Nothing to reconcile until there is history strictly before the date.
	start, ok, err := g.calc.historyStart(ctx)
	if err != nil {
		return false, err
	}
	if !ok || !start.Before(date) {
		return false, nil
	}
	return true, nil
}

// Confirm records the acknowledgment for date. Idempotent: a repeat confirm
// returns the existing row unchanged.
func (g *Gate) Confirm(ctx context.Context, date Date, actor string) (Confirmation, error) {
	if existing, ok, err := g.confirmations.GetConfirmation(ctx, date); err != nil {
		return Confirmation{}, err
	} else if ok {
		return existing, nil
	}

	c := Confirmation{
		ID:          uuid.NewString(),
		Date:        date,
		ConfirmedBy: actor,
		ConfirmedAt: g.clock.Now(),
	}
	saved, err := g.confirmations.SaveConfirmation(ctx, c)
	if err != nil {
		return Confirmation{}, fmt.Errorf("save confirmation: %w", err)
	}
	return saved, nil
}

// Status bundles the confirmed flag, the needs-confirmation flag, and the
// previous day's snapshot for the API surface.
func (g *Gate) Status(ctx context.Context, date Date) (ConfirmationStatus, error) {
	status := ConfirmationStatus{Date: date}

	if c, ok, err := g.confirmations.GetConfirmation(ctx, date); err != nil {
		return status, err
	} else if ok {
		status.Confirmed = true
		status.Confirmation = &c
	}

	needs, err := g.NeedsConfirmation(ctx, date)
	if err != nil {
		return status, err
	}
	status.NeedsConfirmation = needs

	// The previous snapshot is what the user is asked to review. Best-effort:
	// a date with no history simply has none.
	if start, ok, err := g.calc.historyStart(ctx); err != nil {
		return status, err
	} else if ok && start.Before(date) {
		prev, err := g.calc.Snapshot(ctx, date.Prev())
		if err != nil {
			return status, err
		}
		status.PreviousSnapshot = &prev
	}

	return status, nil
}

func (g *Gate) cutoffPassed() bool {
	now := g.clock.Now()
	minutes := now.Hour()*60 + now.Minute()
	return minutes >= g.cutoff.Hour*60+g.cutoff.Minute
}
