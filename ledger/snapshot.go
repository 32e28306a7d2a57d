/*
snapshot.go - Closing balance derivation

PURPOSE:
  Computes (and caches) the end-of-day balance per payment target:

    closing(date, target) = closing(date-1, target)
                          + opening override recorded for date (if any)
                          + net of entries dated exactly date

  Recursive by construction: asking for a date with no stored snapshot
  walks back day by day until a stored snapshot or the start of history.

SNAPSHOTS ARE DERIVED DATA:
  The entry history is the source of truth. A stale or missing snapshot is
  never an error condition - Recompute overwrites, and a failed recompute
  at a call site is logged, not fatal, because the next query rebuilds it.
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot holds the computed end-of-day balance per target for one date.
type Snapshot struct {
	Date       Date
	Balances   map[PaymentTarget]decimal.Decimal
	ComputedAt time.Time
}

// Balance returns the closing balance for target, zero when the target has
// never moved.
func (s Snapshot) Balance(target PaymentTarget) decimal.Decimal {
	if b, ok := s.Balances[target]; ok {
		return b
	}
	return decimal.Zero
}

func cloneBalances(in map[PaymentTarget]decimal.Decimal) map[PaymentTarget]decimal.Decimal {
	out := make(map[PaymentTarget]decimal.Decimal, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Calculator derives and caches closing-balance snapshots.
type Calculator struct {
	entries   EntryStore
	snapshots SnapshotStore
	clock     Clock
}

func NewCalculator(entries EntryStore, snapshots SnapshotStore, clock Clock) *Calculator {
	return &Calculator{entries: entries, snapshots: snapshots, clock: clock}
}

// Snapshot returns the closing balance snapshot for date, computing and
// storing it when not already cached.
func (c *Calculator) Snapshot(ctx context.Context, date Date) (Snapshot, error) {
	if snap, ok, err := c.snapshots.GetSnapshot(ctx, date); err != nil {
		return Snapshot{}, err
	} else if ok {
		return snap, nil
	}
	return c.build(ctx, date)
}

// Recompute forces recalculation and overwrite of the stored snapshot for
// date. Called after any ledger mutation affecting that date. Later dates'
// cached snapshots are not touched; they self-heal on their own recompute.
func (c *Calculator) Recompute(ctx context.Context, date Date) (Snapshot, error) {
	return c.build(ctx, date)
}

func (c *Calculator) build(ctx context.Context, date Date) (Snapshot, error) {
	prev, err := c.previousBalances(ctx, date)
	if err != nil {
		return Snapshot{}, err
	}

	balances := cloneBalances(prev)

	opening, err := c.snapshots.OpeningBalances(ctx, date)
	if err != nil {
		return Snapshot{}, err
	}
	for target, amount := range opening {
		balances[target] = balances[target].Add(amount)
	}

	entries, err := c.entries.EntriesOn(ctx, date)
	if err != nil {
		return Snapshot{}, err
	}
	for _, e := range entries {
		balances[e.Target] = balances[e.Target].Add(e.Signed())
	}

	snap := Snapshot{Date: date, Balances: balances, ComputedAt: c.clock.Now()}
	if err := c.snapshots.SaveSnapshot(ctx, snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// previousBalances resolves the base the date builds on. A date at or before
// the start of history starts from zero; otherwise the previous day's
// snapshot is fetched (recursing as needed).
func (c *Calculator) previousBalances(ctx context.Context, date Date) (map[PaymentTarget]decimal.Decimal, error) {
	first, ok, err := c.historyStart(ctx)
	if err != nil {
		return nil, err
	}
	if !ok || !first.Before(date) {
		return nil, nil
	}

	prev, err := c.Snapshot(ctx, date.Prev())
	if err != nil {
		return nil, err
	}
	return prev.Balances, nil
}

// historyStart is the earliest date with either an entry or an opening
// override. Dates before it have nothing to carry forward.
func (c *Calculator) historyStart(ctx context.Context) (Date, bool, error) {
	firstEntry, hasEntry, err := c.entries.FirstEntryDate(ctx)
	if err != nil {
		return Date{}, false, err
	}
	firstOpening, hasOpening, err := c.snapshots.FirstOpeningDate(ctx)
	if err != nil {
		return Date{}, false, err
	}
	switch {
	case hasEntry && hasOpening:
		if firstOpening.Before(firstEntry) {
			return firstOpening, true, nil
		}
		return firstEntry, true, nil
	case hasEntry:
		return firstEntry, true, nil
	case hasOpening:
		return firstOpening, true, nil
	default:
		return Date{}, false, nil
	}
}
