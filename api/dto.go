/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

WIRE CONVENTIONS:
  - Monetary amounts are 2-decimal strings ("125.00"), parsed with
    shopspring/decimal. Floats never appear on the money path.
  - Dates are business-local YYYY-MM-DD strings.
  - Payment targets are {"kind": "cash"} or
    {"kind": "bank"|"card", "account_id": "..."}.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Structural validation via validator/v10 struct tags (handlers call
  h.validate.Struct). Domain rules stay in the trade/ledger packages.

SEE ALSO:
  - handlers.go: Uses these types
  - trade/orchestrator.go: Domain input types these convert into
*/
package api

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/orenretail/ledger-engine/ledger"
	"github.com/orenretail/ledger-engine/trade"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ChargeDTO is a discount or tax on the wire.
type ChargeDTO struct {
	Type  string `json:"type" validate:"required,oneof=percentage absolute"`
	Value string `json:"value" validate:"required"`
}

func (c *ChargeDTO) toCharge() (trade.Charge, error) {
	if c == nil {
		return trade.Charge{}, nil
	}
	value, err := decimal.NewFromString(c.Value)
	if err != nil {
		return trade.Charge{}, fmt.Errorf("invalid charge value %q", c.Value)
	}
	return trade.Charge{Type: trade.ValueType(c.Type), Value: value}, nil
}

// LineItemRequest is one product line in a create/update payload.
// Quantities are in entry-mode units: dozens when entry_mode is "dozen".
type LineItemRequest struct {
	ProductID    string     `json:"product_id" validate:"required"`
	EntryMode    string     `json:"entry_mode" validate:"omitempty,oneof=unit dozen"`
	FrontQty     int64      `json:"front_qty" validate:"min=0"`
	WarehouseQty int64      `json:"warehouse_qty" validate:"min=0"`
	UnitPrice    string     `json:"unit_price,omitempty"`
	DozenPrice   string     `json:"dozen_price,omitempty"`
	Discount     *ChargeDTO `json:"discount,omitempty"`
}

func (li LineItemRequest) toInput() (trade.LineItemInput, error) {
	in := trade.LineItemInput{
		ProductID:    li.ProductID,
		EntryMode:    trade.EntryMode(li.EntryMode),
		FrontQty:     li.FrontQty,
		WarehouseQty: li.WarehouseQty,
	}
	var err error
	if in.UnitPrice, err = parseMoney(li.UnitPrice); err != nil {
		return in, fmt.Errorf("invalid unit_price for %s", li.ProductID)
	}
	if in.DozenPrice, err = parseMoney(li.DozenPrice); err != nil {
		return in, fmt.Errorf("invalid dozen_price for %s", li.ProductID)
	}
	if in.Discount, err = li.Discount.toCharge(); err != nil {
		return in, err
	}
	return in, nil
}

// PaymentRequest is one payment in a create/update/add-payment payload.
type PaymentRequest struct {
	Target ledger.PaymentTarget `json:"target"`
	Amount string               `json:"amount" validate:"required"`
}

func (p PaymentRequest) toInput() (trade.PaymentInput, error) {
	amount, err := decimal.NewFromString(p.Amount)
	if err != nil {
		return trade.PaymentInput{}, fmt.Errorf("invalid payment amount %q", p.Amount)
	}
	return trade.PaymentInput{Target: p.Target, Amount: amount}, nil
}

// CreateTransactionRequest creates a purchase or sale.
type CreateTransactionRequest struct {
	Kind              string            `json:"kind" validate:"required,oneof=purchase sale"`
	Date              string            `json:"date" validate:"required"`
	CounterpartyName  string            `json:"counterparty_name" validate:"required"`
	CounterpartyPhone string            `json:"counterparty_phone,omitempty"`
	Items             []LineItemRequest `json:"items" validate:"required,min=1,dive"`
	Discount          *ChargeDTO        `json:"discount,omitempty"`
	Tax               *ChargeDTO        `json:"tax,omitempty"`
	Payments          []PaymentRequest  `json:"payments,omitempty" validate:"omitempty,dive"`
	Actor             string            `json:"actor,omitempty"`
}

// UpdateTransactionRequest edits a transaction. Payments carries the full
// list; stored payments must appear unchanged as its prefix.
type UpdateTransactionRequest struct {
	CounterpartyName  *string           `json:"counterparty_name,omitempty"`
	CounterpartyPhone *string           `json:"counterparty_phone,omitempty"`
	Items             []LineItemRequest `json:"items" validate:"required,min=1,dive"`
	Discount          *ChargeDTO        `json:"discount,omitempty"`
	Tax               *ChargeDTO        `json:"tax,omitempty"`
	Payments          []PaymentRequest  `json:"payments" validate:"omitempty,dive"`
	Actor             string            `json:"actor,omitempty"`
}

// CancelTransactionRequest cancels a transaction. Refund is required when
// any money has been paid.
type CancelTransactionRequest struct {
	Refund *ledger.PaymentTarget `json:"refund,omitempty"`
	Actor  string                `json:"actor,omitempty"`
}

// AddPaymentRequest appends one payment to a pending transaction.
type AddPaymentRequest struct {
	Target ledger.PaymentTarget `json:"target"`
	Amount string               `json:"amount" validate:"required"`
	Actor  string               `json:"actor,omitempty"`
}

// AdjustmentRequest records a manual ledger adjustment.
type AdjustmentRequest struct {
	Date      string               `json:"date,omitempty"`
	Target    ledger.PaymentTarget `json:"target"`
	Amount    string               `json:"amount" validate:"required"`
	Direction string               `json:"direction" validate:"required,oneof=income expense"`
	Note      string               `json:"note,omitempty"`
	Actor     string               `json:"actor,omitempty"`
}

// ConfirmRequest acknowledges a day's closing balances.
type ConfirmRequest struct {
	ConfirmedBy string `json:"confirmed_by" validate:"required"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ErrorResponse is the uniform error body. Code is a stable machine-readable
// kind; Details carries the specific message.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// LineItemDTO mirrors trade.LineItem for responses.
type LineItemDTO struct {
	ProductID    string     `json:"product_id"`
	ProductName  string     `json:"product_name"`
	EntryMode    string     `json:"entry_mode"`
	FrontQty     int64      `json:"front_qty"`
	WarehouseQty int64      `json:"warehouse_qty"`
	UnitPrice    string     `json:"unit_price"`
	DozenPrice   string     `json:"dozen_price"`
	Discount     *ChargeDTO `json:"discount,omitempty"`
	LineTotal    string     `json:"line_total"`
}

// PaymentDTO mirrors trade.Payment.
type PaymentDTO struct {
	Target ledger.PaymentTarget `json:"target"`
	Amount string               `json:"amount"`
	At     string               `json:"at"`
}

// TransactionDTO is the full transaction view.
type TransactionDTO struct {
	ID                string        `json:"id"`
	Kind              string        `json:"kind"`
	CounterpartyName  string        `json:"counterparty_name"`
	CounterpartyPhone string        `json:"counterparty_phone,omitempty"`
	Date              string        `json:"date"`
	CreatedAt         string        `json:"created_at"`
	CreatedBy         string        `json:"created_by,omitempty"`
	Items             []LineItemDTO `json:"items"`
	Subtotal          string        `json:"subtotal"`
	Discount          *ChargeDTO    `json:"discount,omitempty"`
	DiscountAmount    string        `json:"discount_amount"`
	Tax               *ChargeDTO    `json:"tax,omitempty"`
	TaxAmount         string        `json:"tax_amount"`
	Total             string        `json:"total"`
	Paid              string        `json:"paid"`
	RemainingBalance  string        `json:"remaining_balance"`
	Payments          []PaymentDTO  `json:"payments"`
	Status            string        `json:"status"`
}

// StockDeltaDTO is one applied stock movement.
type StockDeltaDTO struct {
	ProductID string `json:"product_id"`
	Location  string `json:"location"`
	Units     int64  `json:"units"`
}

// CreateTransactionResponse pairs the persisted transaction with the stock
// deltas that were applied for it.
type CreateTransactionResponse struct {
	Transaction        TransactionDTO  `json:"transaction"`
	AppliedStockDeltas []StockDeltaDTO `json:"applied_stock_deltas"`
}

// TargetBalanceDTO is one target's balance within a snapshot.
type TargetBalanceDTO struct {
	Target  ledger.PaymentTarget `json:"target"`
	Balance string               `json:"balance"`
}

// BalanceDTO is a closing-balance snapshot for one date.
type BalanceDTO struct {
	Date       string             `json:"date"`
	Balances   []TargetBalanceDTO `json:"balances"`
	ComputedAt string             `json:"computed_at"`
}

// ConfirmationDTO is a stored confirmation row.
type ConfirmationDTO struct {
	ID          string `json:"id"`
	Date        string `json:"date"`
	ConfirmedBy string `json:"confirmed_by"`
	ConfirmedAt string `json:"confirmed_at"`
}

// ConfirmationStatusDTO is the gate's answer for one date.
type ConfirmationStatusDTO struct {
	Date              string           `json:"date"`
	Confirmed         bool             `json:"confirmed"`
	NeedsConfirmation bool             `json:"needs_confirmation"`
	Confirmation      *ConfirmationDTO `json:"confirmation,omitempty"`
	PreviousBalances  *BalanceDTO      `json:"previous_balances,omitempty"`
}

// EntryDTO is a ledger entry (returned from adjustments).
type EntryDTO struct {
	ID        string               `json:"id"`
	Date      string               `json:"date"`
	Target    ledger.PaymentTarget `json:"target"`
	Amount    string               `json:"amount"`
	Direction string               `json:"direction"`
	Source    string               `json:"source"`
	SourceID  string               `json:"source_id,omitempty"`
	Actor     string               `json:"actor,omitempty"`
	CreatedAt string               `json:"created_at"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toChargeDTO(c trade.Charge) *ChargeDTO {
	if c.IsZero() && c.Type == "" {
		return nil
	}
	return &ChargeDTO{Type: string(c.Type), Value: c.Value.String()}
}

func toLineItemDTO(li trade.LineItem) LineItemDTO {
	return LineItemDTO{
		ProductID:    li.ProductID,
		ProductName:  li.ProductName,
		EntryMode:    string(li.EntryMode),
		FrontQty:     li.FrontQty,
		WarehouseQty: li.WarehouseQty,
		UnitPrice:    li.UnitPrice.StringFixed(2),
		DozenPrice:   li.DozenPrice.StringFixed(2),
		Discount:     toChargeDTO(li.Discount),
		LineTotal:    li.LineTotal.StringFixed(2),
	}
}

func toPaymentDTO(p trade.Payment) PaymentDTO {
	return PaymentDTO{
		Target: p.Target,
		Amount: p.Amount.StringFixed(2),
		At:     p.At.Format(time.RFC3339),
	}
}

func toTransactionDTO(t *trade.Transaction) TransactionDTO {
	items := make([]LineItemDTO, len(t.Items))
	for i, li := range t.Items {
		items[i] = toLineItemDTO(li)
	}
	payments := make([]PaymentDTO, len(t.Payments))
	for i, p := range t.Payments {
		payments[i] = toPaymentDTO(p)
	}
	return TransactionDTO{
		ID:                t.ID,
		Kind:              string(t.Kind),
		CounterpartyName:  t.CounterpartyName,
		CounterpartyPhone: t.CounterpartyPhone,
		Date:              t.Date.String(),
		CreatedAt:         t.CreatedAt.Format(time.RFC3339),
		CreatedBy:         t.CreatedBy,
		Items:             items,
		Subtotal:          t.Subtotal.StringFixed(2),
		Discount:          toChargeDTO(t.Discount),
		DiscountAmount:    t.DiscountAmount.StringFixed(2),
		Tax:               toChargeDTO(t.Tax),
		TaxAmount:         t.TaxAmount.StringFixed(2),
		Total:             t.Total.StringFixed(2),
		Paid:              t.Paid().StringFixed(2),
		RemainingBalance:  t.RemainingBalance().StringFixed(2),
		Payments:          payments,
		Status:            string(t.Status),
	}
}

func toCreateResponse(r *trade.CreateResult) CreateTransactionResponse {
	deltas := make([]StockDeltaDTO, len(r.AppliedStockDeltas))
	for i, d := range r.AppliedStockDeltas {
		deltas[i] = StockDeltaDTO{
			ProductID: d.ProductID,
			Location:  string(d.Location),
			Units:     d.Units,
		}
	}
	return CreateTransactionResponse{
		Transaction:        toTransactionDTO(&r.Transaction),
		AppliedStockDeltas: deltas,
	}
}

func toBalanceDTO(s ledger.Snapshot) BalanceDTO {
	balances := make([]TargetBalanceDTO, 0, len(s.Balances))
	for target, balance := range s.Balances {
		balances = append(balances, TargetBalanceDTO{Target: target, Balance: balance.StringFixed(2)})
	}
	sortBalances(balances)
	return BalanceDTO{
		Date:       s.Date.String(),
		Balances:   balances,
		ComputedAt: s.ComputedAt.Format(time.RFC3339),
	}
}

func toConfirmationDTO(c ledger.Confirmation) *ConfirmationDTO {
	return &ConfirmationDTO{
		ID:          c.ID,
		Date:        c.Date.String(),
		ConfirmedBy: c.ConfirmedBy,
		ConfirmedAt: c.ConfirmedAt.Format(time.RFC3339),
	}
}

func toEntryDTO(e ledger.Entry) EntryDTO {
	return EntryDTO{
		ID:        e.ID,
		Date:      e.Date.String(),
		Target:    e.Target,
		Amount:    e.Amount.StringFixed(2),
		Direction: string(e.Direction),
		Source:    string(e.Source),
		SourceID:  e.SourceID,
		Actor:     e.Actor,
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
	}
}

// sortBalances orders by target key so list output is deterministic.
func sortBalances(balances []TargetBalanceDTO) {
	sort.Slice(balances, func(i, j int) bool {
		return balances[i].Target.Key() < balances[j].Target.Key()
	})
}

// parseMoney parses an optional decimal string; empty means zero.
func parseMoney(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
