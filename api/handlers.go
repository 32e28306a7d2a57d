/*
handlers.go - HTTP API handlers for the balance ledger engine

PURPOSE:
  Exposes the transaction orchestrator, closing-balance calculator, and
  daily confirmation gate via REST. Handles HTTP request/response, JSON
  serialization, and delegates to domain logic.

ENDPOINTS:
  Transactions:
    POST   /api/transactions               Create purchase/sale
    GET    /api/transactions               List (query: kind, from, to)
    GET    /api/transactions/{id}          Get one
    PUT    /api/transactions/{id}          Edit (items/charges/payment tail)
    POST   /api/transactions/{id}/cancel   Cancel with refund
    POST   /api/transactions/{id}/payments Add a payment

  Balances & reconciliation:
    GET    /api/balances/{date}                Closing-balance snapshot
    GET    /api/reconciliation/{date}          Confirmation status
    POST   /api/reconciliation/{date}/confirm  Confirm (idempotent)

  Adjustments:
    POST   /api/adjustments                Manual ledger adjustment

REQUEST FLOW:
  1. Decode JSON body
  2. Structural validation (validator/v10)
  3. Daily confirmation gate for money-moving operations
  4. Delegate to orchestrator / calculator / gate
  5. Map domain errors to HTTP status + stable error code

ERROR HANDLING:
  Errors are returned as JSON with a stable machine-readable code:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: State conflicts (cancelled, windows expired, unconfirmed day)
  - 422: Insufficient balance
  - 500: Internal errors

SECURITY NOTE:
  No authentication middleware. The engine sits behind the back-office
  gateway, which authenticates staff.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/orenretail/ledger-engine/inventory"
	"github.com/orenretail/ledger-engine/ledger"
	"github.com/orenretail/ledger-engine/trade"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store trade.Store
	Orch  *trade.Orchestrator
	Calc  *ledger.Calculator
	Gate  *ledger.Gate
	Clock ledger.Clock
	Log   *logrus.Entry

	validate *validator.Validate
}

// NewHandler wires the handler. A nil log falls back to the standard logger.
func NewHandler(store trade.Store, orch *trade.Orchestrator, calc *ledger.Calculator, gate *ledger.Gate, clock ledger.Clock, log *logrus.Entry) *Handler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handler{
		Store:    store,
		Orch:     orch,
		Calc:     calc,
		Gate:     gate,
		Clock:    clock,
		Log:      log,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// CreateTransaction creates a purchase or sale dated today.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req CreateTransactionRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if !h.gateAllows(w, r) {
		return
	}

	date, err := ledger.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	in := trade.CreateInput{
		Kind:              trade.Kind(req.Kind),
		Date:              date,
		CounterpartyName:  req.CounterpartyName,
		CounterpartyPhone: req.CounterpartyPhone,
		Actor:             req.Actor,
	}
	if in.Items, err = toLineItemInputs(req.Items); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_item", "Invalid line item", err)
		return
	}
	if in.Discount, err = req.Discount.toCharge(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_charge", "Invalid discount", err)
		return
	}
	if in.Tax, err = req.Tax.toCharge(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_charge", "Invalid tax", err)
		return
	}
	if in.Payments, err = toPaymentInputs(req.Payments); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payment", "Invalid payment", err)
		return
	}

	result, err := h.Orch.Create(r.Context(), in)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toCreateResponse(result))
}

// GetTransaction returns a single transaction.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	t, err := h.Orch.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(t))
}

// ListTransactions returns transactions filtered by kind and date range.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	var filter trade.TransactionFilter

	if raw := r.URL.Query().Get("kind"); raw != "" {
		kind := trade.Kind(raw)
		if !kind.Valid() {
			writeError(w, http.StatusBadRequest, "invalid_kind", "Kind must be purchase or sale", nil)
			return
		}
		filter.Kind = &kind
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		from, err := ledger.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "Invalid from date", err)
			return
		}
		filter.From = &from
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		to, err := ledger.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "Invalid to date", err)
			return
		}
		filter.To = &to
	}

	txs, err := h.Orch.List(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	dtos := make([]TransactionDTO, len(txs))
	for i := range txs {
		dtos[i] = toTransactionDTO(&txs[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UpdateTransaction edits items, charges, counterparty fields, and appends
// to the payment list.
func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req UpdateTransactionRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if !h.gateAllows(w, r) {
		return
	}

	in := trade.UpdateInput{
		CounterpartyName:  req.CounterpartyName,
		CounterpartyPhone: req.CounterpartyPhone,
		Actor:             req.Actor,
	}
	var err error
	if in.Items, err = toLineItemInputs(req.Items); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_item", "Invalid line item", err)
		return
	}
	if in.Discount, err = req.Discount.toCharge(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_charge", "Invalid discount", err)
		return
	}
	if in.Tax, err = req.Tax.toCharge(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_charge", "Invalid tax", err)
		return
	}
	if in.Payments, err = toPaymentInputs(req.Payments); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payment", "Invalid payment", err)
		return
	}

	t, err := h.Orch.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(t))
}

// CancelTransaction cancels a transaction, refunding any paid money.
func (h *Handler) CancelTransaction(w http.ResponseWriter, r *http.Request) {
	var req CancelTransactionRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	t, err := h.Orch.Cancel(r.Context(), chi.URLParam(r, "id"), req.Refund, req.Actor)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(t))
}

// AddPayment appends one payment to a pending transaction.
func (h *Handler) AddPayment(w http.ResponseWriter, r *http.Request) {
	var req AddPaymentRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if !h.gateAllows(w, r) {
		return
	}

	in, err := PaymentRequest{Target: req.Target, Amount: req.Amount}.toInput()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payment", "Invalid payment", err)
		return
	}

	t, err := h.Orch.AddPayment(r.Context(), chi.URLParam(r, "id"), in, req.Actor)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(t))
}

// =============================================================================
// BALANCE & RECONCILIATION HANDLERS
// =============================================================================

// GetBalance returns the closing-balance snapshot for a date. Pass
// ?recompute=true to force a rebuild from the ledger.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	date, err := ledger.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	var snap ledger.Snapshot
	if r.URL.Query().Get("recompute") == "true" {
		snap, err = h.Calc.Recompute(r.Context(), date)
	} else {
		snap, err = h.Calc.Snapshot(r.Context(), date)
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(snap))
}

// GetConfirmationStatus returns the gate's answer for a date, including the
// previous day's balances for the staff review screen.
func (h *Handler) GetConfirmationStatus(w http.ResponseWriter, r *http.Request) {
	date, err := ledger.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	status, err := h.Gate.Status(r.Context(), date)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	dto := ConfirmationStatusDTO{
		Date:              status.Date.String(),
		Confirmed:         status.Confirmed,
		NeedsConfirmation: status.NeedsConfirmation,
	}
	if status.Confirmation != nil {
		dto.Confirmation = toConfirmationDTO(*status.Confirmation)
	}
	if status.PreviousSnapshot != nil {
		prev := toBalanceDTO(*status.PreviousSnapshot)
		dto.PreviousBalances = &prev
	}
	writeJSON(w, http.StatusOK, dto)
}

// Confirm acknowledges a day's closing balances. Idempotent: confirming an
// already-confirmed date returns the stored row.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	date, err := ledger.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	var req ConfirmRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	c, err := h.Gate.Confirm(r.Context(), date, req.ConfirmedBy)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toConfirmationDTO(c))
}

// =============================================================================
// ADJUSTMENT HANDLERS
// =============================================================================

// CreateAdjustment records a manual ledger adjustment outside any
// transaction flow.
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if !h.gateAllows(w, r) {
		return
	}

	in := trade.AdjustmentInput{
		Target:    req.Target,
		Direction: ledger.Direction(req.Direction),
		Note:      req.Note,
		Actor:     req.Actor,
	}
	var err error
	if in.Amount, err = parseMoney(req.Amount); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_amount", "Invalid amount", err)
		return
	}
	if req.Date != "" {
		date, err := ledger.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
		in.Date = &date
	}

	entry, err := h.Orch.RecordAdjustment(r.Context(), in)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(entry))
}

// =============================================================================
// GATE ENFORCEMENT
// =============================================================================

// gateAllows blocks money-moving operations while a previous day still
// awaits confirmation. Writes the 409 itself and returns false when blocked.
func (h *Handler) gateAllows(w http.ResponseWriter, r *http.Request) bool {
	today := h.Clock.Today()
	needs, err := h.Gate.NeedsConfirmation(r.Context(), today)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Failed to check confirmation gate", err)
		return false
	}
	if needs {
		writeError(w, http.StatusConflict, "confirmation_required",
			"Previous day's closing balances must be confirmed first", nil)
		return false
	}
	return true
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "Request validation failed", err)
		return false
	}
	return true
}

func toLineItemInputs(items []LineItemRequest) ([]trade.LineItemInput, error) {
	inputs := make([]trade.LineItemInput, len(items))
	for i, li := range items {
		in, err := li.toInput()
		if err != nil {
			return nil, err
		}
		inputs[i] = in
	}
	return inputs, nil
}

func toPaymentInputs(payments []PaymentRequest) ([]trade.PaymentInput, error) {
	inputs := make([]trade.PaymentInput, len(payments))
	for i, p := range payments {
		in, err := p.toInput()
		if err != nil {
			return nil, err
		}
		inputs[i] = in
	}
	return inputs, nil
}

// writeDomainError maps a domain error to HTTP status plus a stable code.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	code, status := classify(err)
	if status == http.StatusInternalServerError {
		h.Log.WithError(err).Error("internal error")
		writeError(w, status, code, "Internal error", nil)
		return
	}
	writeError(w, status, code, err.Error(), nil)
}

// classify returns the stable error code and HTTP status for err. Kinds are
// never collapsed; clients branch on the code.
func classify(err error) (string, int) {
	switch {
	case trade.IsNotFound(err):
		return "not_found", http.StatusNotFound
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return "insufficient_balance", http.StatusUnprocessableEntity
	case errors.Is(err, trade.ErrAlreadyCancelled):
		return "already_cancelled", http.StatusConflict
	case errors.Is(err, trade.ErrTransactionNotPending):
		return "not_pending", http.StatusConflict
	case errors.Is(err, trade.ErrEditWindowExpired):
		return "edit_window_expired", http.StatusConflict
	case errors.Is(err, trade.ErrCancelWindowExpired):
		return "cancel_window_expired", http.StatusConflict
	case errors.Is(err, trade.ErrCostImmutable):
		return "cost_immutable", http.StatusConflict
	case errors.Is(err, trade.ErrDateNotToday):
		return "date_not_today", http.StatusBadRequest
	case errors.Is(err, trade.ErrQuantityInvalid):
		return "quantity_invalid", http.StatusBadRequest
	case errors.Is(err, trade.ErrPaymentExceedsTotal):
		return "payment_exceeds_total", http.StatusBadRequest
	case errors.Is(err, trade.ErrRefundRequired):
		return "refund_required", http.StatusBadRequest
	case errors.Is(err, trade.ErrRefundTargetInvalid):
		return "refund_target_invalid", http.StatusBadRequest
	case errors.Is(err, inventory.ErrStockWouldGoNegative):
		return "stock_insufficient", http.StatusConflict
	case errors.Is(err, ledger.ErrInvalidAmount):
		return "invalid_amount", http.StatusBadRequest
	case errors.Is(err, ledger.ErrInvalidTarget):
		return "invalid_target", http.StatusBadRequest
	case trade.IsClientError(err):
		return "invalid_request", http.StatusBadRequest
	default:
		return "internal", http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
