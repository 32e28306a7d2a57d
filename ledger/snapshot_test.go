package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orenretail/ledger-engine/ledger"
	"github.com/orenretail/ledger-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newCalc(clock ledger.Clock) (*ledger.Calculator, *memory.Store) {
	store := memory.New()
	return ledger.NewCalculator(store, store, clock), store
}

func fixedClock(year int, month time.Month, day, hour int) *ledger.FixedClock {
	return &ledger.FixedClock{Instant: time.Date(year, month, day, hour, 0, 0, 0, time.UTC)}
}

func record(t *testing.T, store *memory.Store, clock ledger.Clock, date ledger.Date, target ledger.PaymentTarget, amount string, dir ledger.Direction) {
	t.Helper()
	_, err := ledger.NewWriter(store, clock).Record(context.Background(), ledger.RecordInput{
		Date:      date,
		Target:    target,
		Amount:    decimal.RequireFromString(amount),
		Direction: dir,
		Source:    ledger.SourceManualAdjustment,
	})
	require.NoError(t, err)
}

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// =============================================================================
// CLOSING BALANCE DERIVATION
// =============================================================================

func TestSnapshot_NetsEntriesByTargetAndDate(t *testing.T) {
	// GIVEN: income 1000 and expense 300 against cash on March 10, plus
	//        income 500 against a bank account
	// WHEN: computing the March 10 snapshot
	// THEN: cash closes at 700 and the bank account at 500

	ctx := context.Background()
	clock := fixedClock(2025, time.March, 10, 12)
	calc, store := newCalc(clock)
	store.AddBankAccount("acct-1")

	d := ledger.NewDate(2025, time.March, 10)
	record(t, store, clock, d, ledger.Cash(), "1000", ledger.Income)
	record(t, store, clock, d, ledger.Cash(), "300", ledger.Expense)
	record(t, store, clock, d, ledger.Bank("acct-1"), "500", ledger.Income)

	snap, err := calc.Snapshot(ctx, d)
	require.NoError(t, err)

	assert.True(t, snap.Balance(ledger.Cash()).Equal(money("700")))
	assert.True(t, snap.Balance(ledger.Bank("acct-1")).Equal(money("500")))
}

func TestSnapshot_CarriesPreviousDayForward(t *testing.T) {
	// GIVEN: cash income 1000 on March 10 and expense 200 on March 12
	// WHEN: computing March 12 (March 11 has no entries at all)
	// THEN: closing(12) = closing(10) carried through the empty day - 200

	ctx := context.Background()
	clock := fixedClock(2025, time.March, 12, 12)
	calc, store := newCalc(clock)

	record(t, store, clock, ledger.NewDate(2025, time.March, 10), ledger.Cash(), "1000", ledger.Income)
	record(t, store, clock, ledger.NewDate(2025, time.March, 12), ledger.Cash(), "200", ledger.Expense)

	snap, err := calc.Snapshot(ctx, ledger.NewDate(2025, time.March, 12))
	require.NoError(t, err)
	assert.True(t, snap.Balance(ledger.Cash()).Equal(money("800")))

	// The empty intermediate day carries unchanged.
	mid, err := calc.Snapshot(ctx, ledger.NewDate(2025, time.March, 11))
	require.NoError(t, err)
	assert.True(t, mid.Balance(ledger.Cash()).Equal(money("1000")))
}

func TestSnapshot_SnapshotLawHoldsPerDay(t *testing.T) {
	// THEN: snapshot(d) == snapshot(d-1) + net(entries on d) for every day

	ctx := context.Background()
	clock := fixedClock(2025, time.March, 15, 12)
	calc, store := newCalc(clock)

	start := ledger.NewDate(2025, time.March, 10)
	record(t, store, clock, start, ledger.Cash(), "1000", ledger.Income)
	record(t, store, clock, start.AddDays(1), ledger.Cash(), "250", ledger.Expense)
	record(t, store, clock, start.AddDays(3), ledger.Cash(), "100", ledger.Income)

	for d := start.Next(); !d.After(start.AddDays(4)); d = d.Next() {
		prev, err := calc.Snapshot(ctx, d.Prev())
		require.NoError(t, err)
		cur, err := calc.Snapshot(ctx, d)
		require.NoError(t, err)

		entries, err := store.EntriesOn(ctx, d)
		require.NoError(t, err)
		net := decimal.Zero
		for _, e := range entries {
			net = net.Add(e.Signed())
		}

		assert.True(t, cur.Balance(ledger.Cash()).Equal(prev.Balance(ledger.Cash()).Add(net)),
			"law broken on %s", d)
	}
}

func TestSnapshot_BeforeHistoryStartsFromZero(t *testing.T) {
	ctx := context.Background()
	clock := fixedClock(2025, time.March, 10, 12)
	calc, store := newCalc(clock)

	record(t, store, clock, ledger.NewDate(2025, time.March, 10), ledger.Cash(), "1000", ledger.Income)

	snap, err := calc.Snapshot(ctx, ledger.NewDate(2025, time.March, 5))
	require.NoError(t, err)
	assert.True(t, snap.Balance(ledger.Cash()).IsZero())
}

// =============================================================================
// OPENING OVERRIDES
// =============================================================================

func TestSnapshot_OpeningOverrideAddsToCarry(t *testing.T) {
	// GIVEN: an opening balance of 5000 recorded for March 10 and income
	//        1000 the same day
	// THEN: March 10 closes at 6000

	ctx := context.Background()
	clock := fixedClock(2025, time.March, 10, 12)
	calc, store := newCalc(clock)

	d := ledger.NewDate(2025, time.March, 10)
	require.NoError(t, store.SetOpeningBalance(ctx, d, ledger.Cash(), money("5000")))
	record(t, store, clock, d, ledger.Cash(), "1000", ledger.Income)

	snap, err := calc.Snapshot(ctx, d)
	require.NoError(t, err)
	assert.True(t, snap.Balance(ledger.Cash()).Equal(money("6000")))
}

func TestSnapshot_OpeningBeforeFirstEntryAnchorsHistory(t *testing.T) {
	// GIVEN: an opening override on March 8 but no ledger entry until
	//        March 10
	// THEN: March 9 and March 10 both carry the opening forward

	ctx := context.Background()
	clock := fixedClock(2025, time.March, 10, 12)
	calc, store := newCalc(clock)

	require.NoError(t, store.SetOpeningBalance(ctx, ledger.NewDate(2025, time.March, 8), ledger.Cash(), money("5000")))
	record(t, store, clock, ledger.NewDate(2025, time.March, 10), ledger.Cash(), "1000", ledger.Income)

	snap, err := calc.Snapshot(ctx, ledger.NewDate(2025, time.March, 10))
	require.NoError(t, err)
	assert.True(t, snap.Balance(ledger.Cash()).Equal(money("6000")))
}

// =============================================================================
// RECOMPUTE
// =============================================================================

func TestRecompute_OverwritesStaleSnapshot(t *testing.T) {
	// GIVEN: a cached snapshot computed before a late entry arrived
	// WHEN: Recompute runs for that date
	// THEN: the stored snapshot reflects the full entry set

	ctx := context.Background()
	clock := fixedClock(2025, time.March, 10, 12)
	calc, store := newCalc(clock)

	d := ledger.NewDate(2025, time.March, 10)
	record(t, store, clock, d, ledger.Cash(), "1000", ledger.Income)

	snap, err := calc.Snapshot(ctx, d)
	require.NoError(t, err)
	require.True(t, snap.Balance(ledger.Cash()).Equal(money("1000")))

	// A late entry lands on the same date; the cache is now stale.
	record(t, store, clock, d, ledger.Cash(), "400", ledger.Expense)

	stale, err := calc.Snapshot(ctx, d)
	require.NoError(t, err)
	assert.True(t, stale.Balance(ledger.Cash()).Equal(money("1000")), "cache should serve until recompute")

	fresh, err := calc.Recompute(ctx, d)
	require.NoError(t, err)
	assert.True(t, fresh.Balance(ledger.Cash()).Equal(money("600")))

	cached, err := calc.Snapshot(ctx, d)
	require.NoError(t, err)
	assert.True(t, cached.Balance(ledger.Cash()).Equal(money("600")), "recompute must overwrite the stored row")
}
