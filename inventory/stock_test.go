package inventory_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orenretail/ledger-engine/inventory"
	"github.com/orenretail/ledger-engine/store/memory"
)

func seedProduct(t *testing.T, store *memory.Store, id string, front, warehouse int64) {
	t.Helper()
	require.NoError(t, store.PutProduct(context.Background(), inventory.Product{
		ID:           id,
		Name:         "Product " + id,
		FrontQty:     front,
		WarehouseQty: warehouse,
		UnitPrice:    decimal.NewFromInt(10),
	}))
}

func quantities(t *testing.T, store *memory.Store, id string) (int64, int64) {
	t.Helper()
	p, ok, err := store.GetProduct(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok)
	return p.FrontQty, p.WarehouseQty
}

// =============================================================================
// SINGLE ADJUSTMENTS
// =============================================================================

func TestAdjuster_AppliesSignedDelta(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedProduct(t, store, "p1", 10, 5)
	adj := inventory.NewAdjuster(store)

	require.NoError(t, adj.Adjust(ctx, "p1", inventory.LocationFront, 3))
	require.NoError(t, adj.Adjust(ctx, "p1", inventory.LocationWarehouse, -2))

	front, warehouse := quantities(t, store, "p1")
	assert.Equal(t, int64(13), front)
	assert.Equal(t, int64(3), warehouse)
}

func TestAdjuster_RefusesNegativeStock(t *testing.T) {
	// GIVEN: 2 units at the front
	// WHEN: selling 3
	// THEN: rejected, never clamped to zero

	ctx := context.Background()
	store := memory.New()
	seedProduct(t, store, "p1", 2, 0)
	adj := inventory.NewAdjuster(store)

	err := adj.Adjust(ctx, "p1", inventory.LocationFront, -3)
	assert.ErrorIs(t, err, inventory.ErrStockWouldGoNegative)

	var stockErr *inventory.NegativeStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, int64(2), stockErr.Have)
	assert.Equal(t, int64(-3), stockErr.Delta)

	front, _ := quantities(t, store, "p1")
	assert.Equal(t, int64(2), front, "failed adjustment must not touch stock")
}

func TestAdjuster_UnknownProduct(t *testing.T) {
	ctx := context.Background()
	adj := inventory.NewAdjuster(memory.New())
	err := adj.Adjust(ctx, "ghost", inventory.LocationFront, 1)
	assert.ErrorIs(t, err, inventory.ErrProductNotFound)
}

func TestAdjuster_InvalidLocation(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedProduct(t, store, "p1", 1, 1)
	err := inventory.NewAdjuster(store).Adjust(ctx, "p1", "backroom", 1)
	assert.Error(t, err)
}

// =============================================================================
// BATCH APPLY / REVERSE
// =============================================================================

func TestAdjuster_ApplyThenReverseRestoresStock(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedProduct(t, store, "p1", 10, 5)
	seedProduct(t, store, "p2", 7, 0)
	adj := inventory.NewAdjuster(store)

	deltas := []inventory.StockDelta{
		{ProductID: "p1", Location: inventory.LocationFront, Units: -4},
		{ProductID: "p1", Location: inventory.LocationWarehouse, Units: -1},
		{ProductID: "p2", Location: inventory.LocationFront, Units: -2},
	}

	require.NoError(t, adj.Apply(ctx, deltas))
	front, warehouse := quantities(t, store, "p1")
	assert.Equal(t, int64(6), front)
	assert.Equal(t, int64(4), warehouse)

	require.NoError(t, adj.Reverse(ctx, deltas))
	front, warehouse = quantities(t, store, "p1")
	assert.Equal(t, int64(10), front)
	assert.Equal(t, int64(5), warehouse)
	front, _ = quantities(t, store, "p2")
	assert.Equal(t, int64(7), front)
}

func TestAdjuster_FailedApplyUnwindsAppliedPrefix(t *testing.T) {
	// GIVEN: a batch whose last delta would go negative
	// WHEN: Apply fails partway through
	// THEN: the already-applied deltas are reversed; stock is untouched

	ctx := context.Background()
	store := memory.New()
	seedProduct(t, store, "p1", 10, 0)
	seedProduct(t, store, "p2", 1, 0)
	adj := inventory.NewAdjuster(store)

	err := adj.Apply(ctx, []inventory.StockDelta{
		{ProductID: "p1", Location: inventory.LocationFront, Units: -5},
		{ProductID: "p2", Location: inventory.LocationFront, Units: -3}, // fails
	})
	require.ErrorIs(t, err, inventory.ErrStockWouldGoNegative)

	front, _ := quantities(t, store, "p1")
	assert.Equal(t, int64(10), front, "applied prefix must be unwound")
}

func TestAdjuster_ApplySkipsZeroDeltas(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedProduct(t, store, "p1", 5, 0)
	adj := inventory.NewAdjuster(store)

	require.NoError(t, adj.Apply(ctx, []inventory.StockDelta{
		{ProductID: "ghost", Location: inventory.LocationFront, Units: 0}, // skipped, no lookup
		{ProductID: "p1", Location: inventory.LocationFront, Units: 2},
	}))

	front, _ := quantities(t, store, "p1")
	assert.Equal(t, int64(7), front)
}

func TestNegate_FlipsSigns(t *testing.T) {
	in := []inventory.StockDelta{
		{ProductID: "p1", Location: inventory.LocationFront, Units: 5},
		{ProductID: "p2", Location: inventory.LocationWarehouse, Units: -3},
	}
	out := inventory.Negate(in)
	assert.Equal(t, int64(-5), out[0].Units)
	assert.Equal(t, int64(3), out[1].Units)
}
