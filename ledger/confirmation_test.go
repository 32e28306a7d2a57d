package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orenretail/ledger-engine/ledger"
	"github.com/orenretail/ledger-engine/store/memory"
)

func newGate(clock ledger.Clock) (*ledger.Gate, *memory.Store) {
	store := memory.New()
	calc := ledger.NewCalculator(store, store, clock)
	return ledger.NewGate(store, calc, clock, ledger.DefaultCutoff), store
}

// =============================================================================
// NEEDS-CONFIRMATION RULES
// =============================================================================

func TestGate_PastUnconfirmedDayNeedsConfirmation(t *testing.T) {
	// GIVEN: entries exist on March 9, today is March 10
	// THEN: March 10 needs confirmation (history exists strictly before it)

	ctx := context.Background()
	clock := fixedClock(2025, time.March, 10, 9)
	gate, store := newGate(clock)
	record(t, store, clock, ledger.NewDate(2025, time.March, 9), ledger.Cash(), "100", ledger.Income)

	needs, err := gate.NeedsConfirmation(ctx, ledger.NewDate(2025, time.March, 10))
	require.NoError(t, err)
	assert.True(t, needs)
}

func TestGate_NoHistoryMeansNothingToConfirm(t *testing.T) {
	// A brand-new system has nothing to reconcile.
	ctx := context.Background()
	clock := fixedClock(2025, time.March, 10, 9)
	gate, _ := newGate(clock)

	needs, err := gate.NeedsConfirmation(ctx, ledger.NewDate(2025, time.March, 10))
	require.NoError(t, err)
	assert.False(t, needs)
}

func TestGate_HistoryOnlyOnTheDateItselfDoesNotTrigger(t *testing.T) {
	// History must exist strictly BEFORE the date being confirmed.
	ctx := context.Background()
	clock := fixedClock(2025, time.March, 10, 9)
	gate, store := newGate(clock)
	record(t, store, clock, ledger.NewDate(2025, time.March, 10), ledger.Cash(), "100", ledger.Income)

	needs, err := gate.NeedsConfirmation(ctx, ledger.NewDate(2025, time.March, 10))
	require.NoError(t, err)
	assert.False(t, needs)
}

func TestGate_TodayBeforeCutoffDoesNotTrigger(t *testing.T) {
	// GIVEN: today is March 10, the clock reads 05:00, cutoff is 06:00
	// THEN: today does not yet need confirmation

	ctx := context.Background()
	clock := fixedClock(2025, time.March, 10, 5)
	gate, store := newGate(clock)
	record(t, store, clock, ledger.NewDate(2025, time.March, 9), ledger.Cash(), "100", ledger.Income)

	needs, err := gate.NeedsConfirmation(ctx, ledger.NewDate(2025, time.March, 10))
	require.NoError(t, err)
	assert.False(t, needs)
}

func TestGate_TodayAfterCutoffTriggers(t *testing.T) {
	ctx := context.Background()
	clock := fixedClock(2025, time.March, 10, 7)
	gate, store := newGate(clock)
	record(t, store, clock, ledger.NewDate(2025, time.March, 9), ledger.Cash(), "100", ledger.Income)

	needs, err := gate.NeedsConfirmation(ctx, ledger.NewDate(2025, time.March, 10))
	require.NoError(t, err)
	assert.True(t, needs)
}

func TestGate_PastDateTriggersRegardlessOfCutoff(t *testing.T) {
	// Yesterday stays due even before today's cutoff.
	ctx := context.Background()
	clock := fixedClock(2025, time.March, 10, 5)
	gate, store := newGate(clock)
	record(t, store, clock, ledger.NewDate(2025, time.March, 8), ledger.Cash(), "100", ledger.Income)

	needs, err := gate.NeedsConfirmation(ctx, ledger.NewDate(2025, time.March, 9))
	require.NoError(t, err)
	assert.True(t, needs)
}

func TestGate_FutureDateNeverTriggers(t *testing.T) {
	ctx := context.Background()
	clock := fixedClock(2025, time.March, 10, 12)
	gate, store := newGate(clock)
	record(t, store, clock, ledger.NewDate(2025, time.March, 9), ledger.Cash(), "100", ledger.Income)

	needs, err := gate.NeedsConfirmation(ctx, ledger.NewDate(2025, time.March, 11))
	require.NoError(t, err)
	assert.False(t, needs)
}

// =============================================================================
// CONFIRM
// =============================================================================

func TestGate_ConfirmIsIdempotent(t *testing.T) {
	// WHEN: the same date is confirmed twice by different actors
	// THEN: the first row wins and is returned both times

	ctx := context.Background()
	clock := fixedClock(2025, time.March, 10, 9)
	gate, store := newGate(clock)
	record(t, store, clock, ledger.NewDate(2025, time.March, 9), ledger.Cash(), "100", ledger.Income)

	d := ledger.NewDate(2025, time.March, 10)
	first, err := gate.Confirm(ctx, d, "sai")
	require.NoError(t, err)

	second, err := gate.Confirm(ctx, d, "moe")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "sai", second.ConfirmedBy)

	needs, err := gate.NeedsConfirmation(ctx, d)
	require.NoError(t, err)
	assert.False(t, needs)
}

func TestGate_StatusIncludesPreviousSnapshot(t *testing.T) {
	ctx := context.Background()
	clock := fixedClock(2025, time.March, 10, 9)
	gate, store := newGate(clock)
	record(t, store, clock, ledger.NewDate(2025, time.March, 9), ledger.Cash(), "700", ledger.Income)

	status, err := gate.Status(ctx, ledger.NewDate(2025, time.March, 10))
	require.NoError(t, err)

	assert.False(t, status.Confirmed)
	assert.True(t, status.NeedsConfirmation)
	require.NotNil(t, status.PreviousSnapshot)
	assert.True(t, status.PreviousSnapshot.Balance(ledger.Cash()).Equal(money("700")))
}
