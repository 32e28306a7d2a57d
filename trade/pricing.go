/*
pricing.go - Line and transaction total computation

ROUNDING RULE:
  Every monetary amount is rounded to 2 places at the point of
  line/subtotal/discount/tax/total computation, never at display time.
  Multiplications run on unrounded operands; the result is rounded once.

PRICE DERIVATION:
  A line carries two price representations, per-unit and per-dozen. The
  entry mode says which one was entered; the other is always derived as
  unit x 12 (or dozen / 12). A line with neither price falls back to the
  product's stored prices.
*/
package trade

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/orenretail/ledger-engine/inventory"
	"github.com/orenretail/ledger-engine/ledger"
)

var twelve = decimal.NewFromInt(unitsPerDozen)

// LineItemInput is the caller's line payload.
type LineItemInput struct {
	ProductID    string
	EntryMode    EntryMode // defaults to unit
	FrontQty     int64     // entry-mode units (dozens in dozen mode)
	WarehouseQty int64
	UnitPrice    decimal.Decimal // zero = derive or use product default
	DozenPrice   decimal.Decimal
	Discount     Charge
}

// derivePrices resolves the authoritative per-unit price and the derived
// per-dozen price from whichever representations are present.
func derivePrices(mode EntryMode, unit, dozen decimal.Decimal, product inventory.Product) (decimal.Decimal, decimal.Decimal, error) {
	if unit.IsZero() && dozen.IsZero() {
		unit, dozen = product.UnitPrice, product.DozenPrice
	}
	switch {
	case unit.IsNegative() || dozen.IsNegative():
		return decimal.Zero, decimal.Zero, &ValidationError{Field: "price", Message: "price cannot be negative"}
	case !unit.IsZero() && !dozen.IsZero():
		// Both supplied: the entry mode's representation is authoritative,
		// the other is re-derived.
		if mode == ModeDozen {
			return dozen.Div(twelve), dozen, nil
		}
		return unit, unit.Mul(twelve), nil
	case !unit.IsZero():
		return unit, unit.Mul(twelve), nil
	case !dozen.IsZero():
		return dozen.Div(twelve), dozen, nil
	default:
		return decimal.Zero, decimal.Zero, &ValidationError{
			Field: "price", Message: fmt.Sprintf("no price for product %s", product.ID),
		}
	}
}

// priceLine computes one line's total with the single-rounding rule.
// In dozen mode the effective unit price is dozen/12, so pricing dozens
// directly and pricing the derived unit count agree.
func priceLine(li *LineItem) {
	units := decimal.NewFromInt(li.TotalUnits())
	gross := li.UnitPrice.Mul(units)
	discount := decimal.Zero
	if !li.Discount.IsZero() {
		discount = li.Discount.AmountOn(gross)
	}
	li.LineTotal = ledger.RoundMoney(gross.Sub(discount))
}

// priceItems validates and prices the whole item set, resolving each
// product. Returns the priced items and the subtotal.
func priceItems(ctx context.Context, products inventory.ProductStore, inputs []LineItemInput) ([]LineItem, decimal.Decimal, error) {
	if len(inputs) == 0 {
		return nil, decimal.Zero, &ValidationError{Field: "items", Message: "at least one line item is required"}
	}

	items := make([]LineItem, 0, len(inputs))
	subtotal := decimal.Zero

	for i, in := range inputs {
		mode := in.EntryMode
		if mode == "" {
			mode = ModeUnit
		}
		if mode != ModeUnit && mode != ModeDozen {
			return nil, decimal.Zero, &ValidationError{
				Field: fmt.Sprintf("items[%d].entry_mode", i), Message: fmt.Sprintf("unknown entry mode %q", mode),
			}
		}
		if in.FrontQty < 0 || in.WarehouseQty < 0 {
			return nil, decimal.Zero, fmt.Errorf("%w: items[%d] has a negative quantity", ErrQuantityInvalid, i)
		}
		if in.FrontQty+in.WarehouseQty == 0 {
			return nil, decimal.Zero, fmt.Errorf("%w: items[%d] has no units", ErrQuantityInvalid, i)
		}
		if !in.Discount.Valid() {
			return nil, decimal.Zero, &ValidationError{
				Field: fmt.Sprintf("items[%d].discount", i), Message: "malformed discount",
			}
		}

		product, ok, err := products.GetProduct(ctx, in.ProductID)
		if err != nil {
			return nil, decimal.Zero, err
		}
		if !ok {
			return nil, decimal.Zero, fmt.Errorf("%w: %s", inventory.ErrProductNotFound, in.ProductID)
		}

		unit, dozen, err := derivePrices(mode, in.UnitPrice, in.DozenPrice, product)
		if err != nil {
			return nil, decimal.Zero, err
		}

		li := LineItem{
			ProductID:    product.ID,
			ProductName:  product.Name,
			EntryMode:    mode,
			FrontQty:     in.FrontQty,
			WarehouseQty: in.WarehouseQty,
			UnitPrice:    unit,
			DozenPrice:   dozen,
			Discount:     in.Discount,
		}
		priceLine(&li)

		items = append(items, li)
		subtotal = subtotal.Add(li.LineTotal)
	}

	return items, subtotal, nil
}

// computeTotals applies the transaction-level discount and tax. Tax applies
// to the discounted base.
func computeTotals(subtotal decimal.Decimal, discount, tax Charge) (discountAmt, taxAmt, total decimal.Decimal) {
	discountAmt = decimal.Zero
	if !discount.IsZero() {
		discountAmt = discount.AmountOn(subtotal)
	}
	base := subtotal.Sub(discountAmt)
	taxAmt = decimal.Zero
	if !tax.IsZero() {
		taxAmt = tax.AmountOn(base)
	}
	total = ledger.RoundMoney(base.Add(taxAmt))
	return discountAmt, taxAmt, total
}
