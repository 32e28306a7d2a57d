/*
Package inventory provides the stock adjuster: per-location quantity deltas
against a product record.

PURPOSE:
  The adjuster is deliberately narrow. It applies one signed delta to one
  product+location and refuses to drive a quantity negative. It has no
  cross-product knowledge and no idea whether a delta came from a purchase,
  a sale, an edit, or a cancellation - the orchestrator owns that.

CONCURRENCY:
  AdjustQuantity implementations must apply the delta as one atomic
  conditional update scoped to (productID, location), so two concurrent
  sales of the last unit cannot both succeed.
*/
package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Location is one of the two stock locations a product is held at.
type Location string

const (
	LocationFront     Location = "front"
	LocationWarehouse Location = "warehouse"
)

func (l Location) Valid() bool {
	return l == LocationFront || l == LocationWarehouse
}

// Product is the external collaborator's entity; this package only ever
// touches the two quantity fields. Prices are the product's defaults,
// used when a line item does not carry its own.
type Product struct {
	ID           string
	Name         string
	FrontQty     int64
	WarehouseQty int64
	UnitPrice    decimal.Decimal
	DozenPrice   decimal.Decimal
}

// Quantity returns the stock held at location.
func (p Product) Quantity(loc Location) int64 {
	if loc == LocationWarehouse {
		return p.WarehouseQty
	}
	return p.FrontQty
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrProductNotFound = errors.New("product not found")

	// ErrStockWouldGoNegative is returned when applying a delta would leave
	// a location quantity below zero.
	ErrStockWouldGoNegative = errors.New("stock would go negative")
)

// NegativeStockError details the rejected adjustment.
type NegativeStockError struct {
	ProductID string
	Location  Location
	Have      int64
	Delta     int64
}

func (e *NegativeStockError) Error() string {
	return fmt.Sprintf("stock would go negative: product %s at %s has %d, delta %d",
		e.ProductID, e.Location, e.Have, e.Delta)
}

func (e *NegativeStockError) Unwrap() error { return ErrStockWouldGoNegative }

// =============================================================================
// PRODUCT STORE
// =============================================================================

type ProductStore interface {
	GetProduct(ctx context.Context, id string) (Product, bool, error)

	// AdjustQuantity atomically applies delta to product+location. Fails
	// with NegativeStockError (never clamping) when the result would be
	// negative, and ErrProductNotFound when the product is missing.
	AdjustQuantity(ctx context.Context, id string, loc Location, delta int64) error

	// PutProduct inserts or replaces a product record. Used by fixtures and
	// the surrounding product-CRUD system, not by the orchestrator.
	PutProduct(ctx context.Context, p Product) error
}

// =============================================================================
// STOCK ADJUSTER
// =============================================================================

// StockDelta is one applied (or to-apply) adjustment.
type StockDelta struct {
	ProductID string   `json:"product_id"`
	Location  Location `json:"location"`
	Units     int64    `json:"units"`
}

// Adjuster applies and reverses stock deltas.
type Adjuster struct {
	products ProductStore
}

func NewAdjuster(products ProductStore) *Adjuster {
	return &Adjuster{products: products}
}

// Adjust applies one signed delta.
func (a *Adjuster) Adjust(ctx context.Context, productID string, loc Location, delta int64) error {
	if !loc.Valid() {
		return fmt.Errorf("invalid stock location %q", loc)
	}
	return a.products.AdjustQuantity(ctx, productID, loc, delta)
}

// Apply applies every delta in order. Zero deltas are skipped. If a delta
// fails, the already-applied prefix is reversed before returning, so a
// failed Apply leaves stock untouched.
func (a *Adjuster) Apply(ctx context.Context, deltas []StockDelta) error {
	applied := make([]StockDelta, 0, len(deltas))
	for _, d := range deltas {
		if d.Units == 0 {
			continue
		}
		if err := a.Adjust(ctx, d.ProductID, d.Location, d.Units); err != nil {
			a.reverse(ctx, applied)
			return err
		}
		applied = append(applied, d)
	}
	return nil
}

// Reverse undoes every delta (negated, reverse order).
func (a *Adjuster) Reverse(ctx context.Context, deltas []StockDelta) error {
	for i := len(deltas) - 1; i >= 0; i-- {
		d := deltas[i]
		if d.Units == 0 {
			continue
		}
		if err := a.Adjust(ctx, d.ProductID, d.Location, -d.Units); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adjuster) reverse(ctx context.Context, applied []StockDelta) {
	// Unwind of a partial Apply. Errors here are unreachable in practice:
	// the deltas were just applied, so the negation cannot go negative.
	_ = a.Reverse(ctx, applied)
}

// Negate returns the deltas with flipped signs, for cancellation.
func Negate(deltas []StockDelta) []StockDelta {
	out := make([]StockDelta, len(deltas))
	for i, d := range deltas {
		out[i] = StockDelta{ProductID: d.ProductID, Location: d.Location, Units: -d.Units}
	}
	return out
}
