package trade

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orenretail/ledger-engine/inventory"
)

// fakeProducts is a map-backed ProductStore for pricing tests.
type fakeProducts map[string]inventory.Product

func (f fakeProducts) GetProduct(_ context.Context, id string) (inventory.Product, bool, error) {
	p, ok := f[id]
	return p, ok, nil
}

func (f fakeProducts) AdjustQuantity(_ context.Context, id string, loc inventory.Location, delta int64) error {
	return nil
}

func (f fakeProducts) PutProduct(_ context.Context, p inventory.Product) error {
	f[p.ID] = p
	return nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testProducts() fakeProducts {
	return fakeProducts{
		"soap": {ID: "soap", Name: "Soap", UnitPrice: dec("10"), DozenPrice: dec("120")},
		"oil":  {ID: "oil", Name: "Oil", UnitPrice: dec("42.50"), DozenPrice: dec("510")},
	}
}

// =============================================================================
// PRICE DERIVATION
// =============================================================================

func TestDerivePrices_UnitSuppliedDerivesDozen(t *testing.T) {
	unit, dozen, err := derivePrices(ModeUnit, dec("10"), decimal.Zero, inventory.Product{})
	require.NoError(t, err)
	assert.True(t, unit.Equal(dec("10")))
	assert.True(t, dozen.Equal(dec("120")))
}

func TestDerivePrices_DozenSuppliedDerivesUnit(t *testing.T) {
	unit, dozen, err := derivePrices(ModeDozen, decimal.Zero, dec("60"), inventory.Product{})
	require.NoError(t, err)
	assert.True(t, unit.Equal(dec("5")))
	assert.True(t, dozen.Equal(dec("60")))
}

func TestDerivePrices_BothSuppliedEntryModeWins(t *testing.T) {
	// Inconsistent pair: dozen is authoritative in dozen mode.
	unit, dozen, err := derivePrices(ModeDozen, dec("10"), dec("60"), inventory.Product{})
	require.NoError(t, err)
	assert.True(t, unit.Equal(dec("5")))
	assert.True(t, dozen.Equal(dec("60")))

	// And unit in unit mode.
	unit, dozen, err = derivePrices(ModeUnit, dec("10"), dec("60"), inventory.Product{})
	require.NoError(t, err)
	assert.True(t, unit.Equal(dec("10")))
	assert.True(t, dozen.Equal(dec("120")))
}

func TestDerivePrices_FallsBackToProductDefaults(t *testing.T) {
	product := inventory.Product{ID: "soap", UnitPrice: dec("10"), DozenPrice: dec("120")}
	unit, dozen, err := derivePrices(ModeUnit, decimal.Zero, decimal.Zero, product)
	require.NoError(t, err)
	assert.True(t, unit.Equal(dec("10")))
	assert.True(t, dozen.Equal(dec("120")))
}

func TestDerivePrices_NegativeRejected(t *testing.T) {
	_, _, err := derivePrices(ModeUnit, dec("-1"), decimal.Zero, inventory.Product{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDerivePrices_NoPriceAnywhereRejected(t *testing.T) {
	_, _, err := derivePrices(ModeUnit, decimal.Zero, decimal.Zero, inventory.Product{ID: "bare"})
	assert.ErrorIs(t, err, ErrValidation)
}

// =============================================================================
// LINE PRICING
// =============================================================================

func TestPriceItems_UnitMode(t *testing.T) {
	items, subtotal, err := priceItems(context.Background(), testProducts(), []LineItemInput{
		{ProductID: "soap", FrontQty: 3, WarehouseQty: 2, UnitPrice: dec("10")},
	})
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, int64(5), items[0].TotalUnits())
	assert.True(t, items[0].LineTotal.Equal(dec("50")))
	assert.True(t, subtotal.Equal(dec("50")))
}

func TestPriceItems_DozenModeQuantitiesAreDozens(t *testing.T) {
	// 2 dozen at the front + 1 dozen in the warehouse = 36 units at
	// 60/dozen = 180.
	items, subtotal, err := priceItems(context.Background(), testProducts(), []LineItemInput{
		{ProductID: "soap", EntryMode: ModeDozen, FrontQty: 2, WarehouseQty: 1, DozenPrice: dec("60")},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(36), items[0].TotalUnits())
	assert.True(t, items[0].UnitPrice.Equal(dec("5")))
	assert.True(t, subtotal.Equal(dec("180")))
}

func TestPriceItems_LineDiscountPercentage(t *testing.T) {
	// 10 units at 42.50 = 425, minus 10% = 382.50
	items, _, err := priceItems(context.Background(), testProducts(), []LineItemInput{
		{
			ProductID: "oil", FrontQty: 10, UnitPrice: dec("42.50"),
			Discount: Charge{Type: ValuePercentage, Value: dec("10")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "382.50", items[0].LineTotal.StringFixed(2))
}

func TestPriceItems_RoundsOncePerLine(t *testing.T) {
	// 3 units at 10.333: gross 30.999 rounds to 31.00, not 3 x 10.33.
	items, _, err := priceItems(context.Background(), testProducts(), []LineItemInput{
		{ProductID: "soap", FrontQty: 3, UnitPrice: dec("10.333")},
	})
	require.NoError(t, err)
	assert.Equal(t, "31.00", items[0].LineTotal.StringFixed(2))
}

func TestPriceItems_ZeroUnitLineRejected(t *testing.T) {
	_, _, err := priceItems(context.Background(), testProducts(), []LineItemInput{
		{ProductID: "soap", FrontQty: 0, WarehouseQty: 0, UnitPrice: dec("10")},
	})
	assert.ErrorIs(t, err, ErrQuantityInvalid)
}

func TestPriceItems_NegativeQuantityRejected(t *testing.T) {
	_, _, err := priceItems(context.Background(), testProducts(), []LineItemInput{
		{ProductID: "soap", FrontQty: -1, WarehouseQty: 2, UnitPrice: dec("10")},
	})
	assert.ErrorIs(t, err, ErrQuantityInvalid)
}

func TestPriceItems_UnknownProductRejected(t *testing.T) {
	_, _, err := priceItems(context.Background(), testProducts(), []LineItemInput{
		{ProductID: "ghost", FrontQty: 1, UnitPrice: dec("10")},
	})
	assert.ErrorIs(t, err, inventory.ErrProductNotFound)
}

func TestPriceItems_EmptySetRejected(t *testing.T) {
	_, _, err := priceItems(context.Background(), testProducts(), nil)
	assert.ErrorIs(t, err, ErrValidation)
}

// =============================================================================
// TRANSACTION TOTALS
// =============================================================================

func TestComputeTotals_TaxAppliesToDiscountedBase(t *testing.T) {
	// 1000 - 10% = 900; 5% tax on 900 = 45; total 945.
	discountAmt, taxAmt, total := computeTotals(dec("1000"),
		Charge{Type: ValuePercentage, Value: dec("10")},
		Charge{Type: ValuePercentage, Value: dec("5")})

	assert.Equal(t, "100.00", discountAmt.StringFixed(2))
	assert.Equal(t, "45.00", taxAmt.StringFixed(2))
	assert.Equal(t, "945.00", total.StringFixed(2))
}

func TestComputeTotals_AbsoluteCharges(t *testing.T) {
	discountAmt, taxAmt, total := computeTotals(dec("500"),
		Charge{Type: ValueAbsolute, Value: dec("50")},
		Charge{Type: ValueAbsolute, Value: dec("20")})

	assert.Equal(t, "50.00", discountAmt.StringFixed(2))
	assert.Equal(t, "20.00", taxAmt.StringFixed(2))
	assert.Equal(t, "470.00", total.StringFixed(2))
}

func TestComputeTotals_NoCharges(t *testing.T) {
	discountAmt, taxAmt, total := computeTotals(dec("1200"), Charge{}, Charge{})
	assert.True(t, discountAmt.IsZero())
	assert.True(t, taxAmt.IsZero())
	assert.True(t, total.Equal(dec("1200")))
}

// =============================================================================
// STATUS DERIVATION
// =============================================================================

func TestDeriveStatus(t *testing.T) {
	assert.Equal(t, StatusPending, deriveStatus(dec("500"), dec("300")))
	assert.Equal(t, StatusCompleted, deriveStatus(dec("500"), dec("500")))
	assert.Equal(t, StatusCompleted, deriveStatus(dec("0"), dec("0")))
}

// =============================================================================
// STOCK DELTA DERIVATION
// =============================================================================

func TestStockDeltas_PurchaseAddsSaleRemoves(t *testing.T) {
	items := []LineItem{
		{ProductID: "soap", EntryMode: ModeUnit, FrontQty: 5, WarehouseQty: 3},
	}

	purchase := stockDeltas(KindPurchase, items)
	require.Len(t, purchase, 2)
	assert.Equal(t, int64(5), purchase[0].Units)
	assert.Equal(t, int64(3), purchase[1].Units)

	sale := stockDeltas(KindSale, items)
	assert.Equal(t, int64(-5), sale[0].Units)
	assert.Equal(t, int64(-3), sale[1].Units)
}

func TestStockDeltas_DozenModeConvertsToUnits(t *testing.T) {
	items := []LineItem{
		{ProductID: "soap", EntryMode: ModeDozen, FrontQty: 2, WarehouseQty: 0},
	}
	deltas := stockDeltas(KindSale, items)
	require.Len(t, deltas, 1)
	assert.Equal(t, int64(-24), deltas[0].Units)
	assert.Equal(t, inventory.LocationFront, deltas[0].Location)
}

func TestStockDeltas_SkipsZeroLocations(t *testing.T) {
	items := []LineItem{
		{ProductID: "soap", EntryMode: ModeUnit, FrontQty: 5, WarehouseQty: 0},
	}
	deltas := stockDeltas(KindPurchase, items)
	require.Len(t, deltas, 1)
	assert.Equal(t, inventory.LocationFront, deltas[0].Location)
}
