/*
Package trade implements the transaction orchestrator: the one component
with cross-entity knowledge, turning a purchase or sale into a consistent
set of side effects across stock, the ledger, and the closing balances.

KEY CONCEPTS IN THIS FILE (types.go):
  - Transaction: a purchase or sale; structurally identical, opposite sign
    of effect on stock and cash flow
  - LineItem: a product quantity split across the two stock locations, with
    per-unit / per-dozen pricing and a line-level discount
  - Payment: one movement against one payment target; append-only during
    the transaction's pending lifetime
  - Status: pending -> completed, or -> cancelled (terminal)

DESIGN PRINCIPLES:
  1. Derived state stays derived: RemainingBalance and Status are computed
     from total and payments, never stored independently
  2. The business date (ledger attribution) is distinct from CreatedAt
     (wall clock)
*/
package trade

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/orenretail/ledger-engine/inventory"
	"github.com/orenretail/ledger-engine/ledger"
)

// =============================================================================
// KIND / STATUS
// =============================================================================

type Kind string

const (
	KindPurchase Kind = "purchase"
	KindSale     Kind = "sale"
)

func (k Kind) Valid() bool { return k == KindPurchase || k == KindSale }

// Direction returns the cash-flow direction of a payment on this kind:
// purchases pay money out, sales bring money in.
func (k Kind) Direction() ledger.Direction {
	if k == KindPurchase {
		return ledger.Expense
	}
	return ledger.Income
}

// RefundDirection is the reverse, used on cancellation.
func (k Kind) RefundDirection() ledger.Direction {
	if k == KindPurchase {
		return ledger.Income
	}
	return ledger.Expense
}

func (k Kind) PaymentSource() ledger.SourceTag {
	if k == KindPurchase {
		return ledger.SourcePurchasePayment
	}
	return ledger.SourceSalePayment
}

func (k Kind) RefundSource() ledger.SourceTag {
	if k == KindPurchase {
		return ledger.SourcePurchaseRefund
	}
	return ledger.SourceSaleRefund
}

// StockSign is +1 for purchases (stock arrives) and -1 for sales.
func (k Kind) StockSign() int64 {
	if k == KindPurchase {
		return 1
	}
	return -1
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// =============================================================================
// CHARGES - percentage or absolute discount/tax
// =============================================================================

type ValueType string

const (
	ValuePercentage ValueType = "percentage"
	ValueAbsolute   ValueType = "absolute"
)

// Charge is a discount or tax with its type tag. The zero value is a
// no-op absolute charge of zero.
type Charge struct {
	Type  ValueType       `json:"type"`
	Value decimal.Decimal `json:"value"`
}

func (c Charge) IsZero() bool { return c.Value.IsZero() }

func (c Charge) Valid() bool {
	if c.Value.IsNegative() {
		return false
	}
	switch c.Type {
	case ValuePercentage, ValueAbsolute:
		return true
	case "":
		return c.Value.IsZero()
	default:
		return false
	}
}

// AmountOn computes the charge against base, rounded to 2 places at this
// computation point. The multiplication runs on unrounded operands.
func (c Charge) AmountOn(base decimal.Decimal) decimal.Decimal {
	if c.Type == ValuePercentage {
		return ledger.RoundMoney(base.Mul(c.Value).Div(decimal.NewFromInt(100)))
	}
	return ledger.RoundMoney(c.Value)
}

// =============================================================================
// LINE ITEM
// =============================================================================

// EntryMode says which of the two price representations was entered.
// The other is always derived as unit x 12.
type EntryMode string

const (
	ModeUnit  EntryMode = "unit"
	ModeDozen EntryMode = "dozen"
)

const unitsPerDozen = 12

// LineItem is one product line. FrontQty/WarehouseQty are in entry-mode
// units: plain units in unit mode, dozens in dozen mode. Cost fields
// (UnitPrice, DozenPrice) are immutable once the transaction is created.
type LineItem struct {
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name"`
	EntryMode    EntryMode       `json:"entry_mode"`
	FrontQty     int64           `json:"front_qty"`
	WarehouseQty int64           `json:"warehouse_qty"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	DozenPrice   decimal.Decimal `json:"dozen_price"`
	Discount     Charge          `json:"discount"`
	LineTotal    decimal.Decimal `json:"line_total"`
}

// unitMultiplier converts entry-mode quantities to stock units.
func (li LineItem) unitMultiplier() int64 {
	if li.EntryMode == ModeDozen {
		return unitsPerDozen
	}
	return 1
}

// FrontUnits is the stock-unit quantity at the front location.
func (li LineItem) FrontUnits() int64 { return li.FrontQty * li.unitMultiplier() }

// WarehouseUnits is the stock-unit quantity at the warehouse.
func (li LineItem) WarehouseUnits() int64 { return li.WarehouseQty * li.unitMultiplier() }

// TotalUnits is the stock-unit quantity across both locations.
func (li LineItem) TotalUnits() int64 { return li.FrontUnits() + li.WarehouseUnits() }

// =============================================================================
// PAYMENT
// =============================================================================

// Payment is one movement against one payment target. Payments are
// append-only while the transaction is pending; "editing" a payment is
// modeled as the surrounding system removing and re-adding, which this
// core never does.
type Payment struct {
	Target ledger.PaymentTarget `json:"target"`
	Amount decimal.Decimal      `json:"amount"`
	At     time.Time            `json:"at"`
}

// =============================================================================
// TRANSACTION
// =============================================================================

// Transaction is a purchase or sale with its line items and payments.
// Counterparty fields are denormalized by design; counterparty records are
// maintained elsewhere for listing only.
type Transaction struct {
	ID                string    `json:"id"`
	Kind              Kind      `json:"kind"`
	CounterpartyName  string    `json:"counterparty_name"`
	CounterpartyPhone string    `json:"counterparty_phone,omitempty"`

	// Date is the business date used for ledger and closing-balance
	// attribution; CreatedAt is the wall clock.
	Date      ledger.Date `json:"date"`
	CreatedAt time.Time   `json:"created_at"`
	CreatedBy string      `json:"created_by"`

	Items []LineItem `json:"items"`

	Subtotal       decimal.Decimal `json:"subtotal"`
	Discount       Charge          `json:"discount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Tax            Charge          `json:"tax"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	Total          decimal.Decimal `json:"total"`

	Payments []Payment `json:"payments"`

	Status Status `json:"status"`
}

// Paid is the sum of payment amounts.
func (t *Transaction) Paid() decimal.Decimal {
	sum := decimal.Zero
	for _, p := range t.Payments {
		sum = sum.Add(p.Amount)
	}
	return sum
}

// RemainingBalance = total - paid. Never negative: enforced before commit.
func (t *Transaction) RemainingBalance() decimal.Decimal {
	return t.Total.Sub(t.Paid())
}

// deriveStatus maps remaining balance to pending/completed.
func deriveStatus(total, paid decimal.Decimal) Status {
	if total.Sub(paid).IsPositive() {
		return StatusPending
	}
	return StatusCompleted
}

// StockDeltas builds the signed per-location deltas this transaction
// applied at creation. Zero-unit locations are skipped.
func (t *Transaction) StockDeltas() []inventory.StockDelta {
	return stockDeltas(t.Kind, t.Items)
}

func stockDeltas(kind Kind, items []LineItem) []inventory.StockDelta {
	sign := kind.StockSign()
	var deltas []inventory.StockDelta
	for _, li := range items {
		if u := li.FrontUnits(); u != 0 {
			deltas = append(deltas, inventory.StockDelta{
				ProductID: li.ProductID, Location: inventory.LocationFront, Units: sign * u,
			})
		}
		if u := li.WarehouseUnits(); u != 0 {
			deltas = append(deltas, inventory.StockDelta{
				ProductID: li.ProductID, Location: inventory.LocationWarehouse, Units: sign * u,
			})
		}
	}
	return deltas
}
