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

func TestWriter_RecordAppendsEntry(t *testing.T) {
	ctx := context.Background()
	clock := fixedClock(2025, time.March, 10, 12)
	store := memory.New()
	writer := ledger.NewWriter(store, clock)

	d := ledger.NewDate(2025, time.March, 10)
	entry, err := writer.Record(ctx, ledger.RecordInput{
		Date:      d,
		Target:    ledger.Cash(),
		Amount:    money("125.5"),
		Direction: ledger.Expense,
		Source:    ledger.SourcePurchasePayment,
		SourceID:  "tx-1",
		Actor:     "sai",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, clock.Instant, entry.CreatedAt)

	entries, err := store.EntriesOn(ctx, d)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entry.ID, entries[0].ID)
	assert.True(t, entries[0].Amount.Equal(money("125.50")))
}

func TestWriter_RejectsNonPositiveAmounts(t *testing.T) {
	ctx := context.Background()
	writer := ledger.NewWriter(memory.New(), fixedClock(2025, time.March, 10, 12))

	for _, amount := range []decimal.Decimal{decimal.Zero, money("-10")} {
		_, err := writer.Record(ctx, ledger.RecordInput{
			Date:      ledger.NewDate(2025, time.March, 10),
			Target:    ledger.Cash(),
			Amount:    amount,
			Direction: ledger.Income,
			Source:    ledger.SourceManualAdjustment,
		})
		assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
	}
}

func TestWriter_RejectsMalformedTarget(t *testing.T) {
	ctx := context.Background()
	writer := ledger.NewWriter(memory.New(), fixedClock(2025, time.March, 10, 12))

	_, err := writer.Record(ctx, ledger.RecordInput{
		Date:      ledger.NewDate(2025, time.March, 10),
		Target:    ledger.PaymentTarget{Kind: ledger.TargetBank}, // missing id
		Amount:    money("10"),
		Direction: ledger.Income,
		Source:    ledger.SourceManualAdjustment,
	})
	assert.ErrorIs(t, err, ledger.ErrInvalidTarget)
}

func TestWriter_RoundsAtRecordTime(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	writer := ledger.NewWriter(store, fixedClock(2025, time.March, 10, 12))

	entry, err := writer.Record(ctx, ledger.RecordInput{
		Date:      ledger.NewDate(2025, time.March, 10),
		Target:    ledger.Cash(),
		Amount:    money("10.125"),
		Direction: ledger.Income,
		Source:    ledger.SourceManualAdjustment,
	})
	require.NoError(t, err)
	assert.Equal(t, "10.13", entry.Amount.StringFixed(2))
}

func TestWriter_MultipleEntriesPerSource(t *testing.T) {
	// One transaction paid in installments produces one row per payment.
	ctx := context.Background()
	clock := fixedClock(2025, time.March, 10, 12)
	store := memory.New()
	writer := ledger.NewWriter(store, clock)

	d := ledger.NewDate(2025, time.March, 10)
	for _, amount := range []string{"100", "200", "50"} {
		_, err := writer.Record(ctx, ledger.RecordInput{
			Date:      d,
			Target:    ledger.Cash(),
			Amount:    money(amount),
			Direction: ledger.Income,
			Source:    ledger.SourceSalePayment,
			SourceID:  "tx-1",
		})
		require.NoError(t, err)
	}

	entries, err := store.EntriesBySource(ctx, "tx-1")
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}
