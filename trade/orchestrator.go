/*
orchestrator.go - Creation / edit / cancellation / add-payment pipelines

PURPOSE:
  The orchestrator is the only component that knows about transactions,
  stock, the ledger, and closing balances at once. Each pipeline runs
  strictly in order:

  create:  validate -> price -> balance check -> {persist + stock + ledger}
           (atomic) -> recompute (best-effort)
  cancel:  refund ledger entry -> stock reversal -> status flip (atomic)

CONSISTENCY:
  - The persist/stock/ledger steps of every pipeline run inside one store
    unit of work, so a failure rolls all of them back together.
  - A per-(date, target) advisory lock is held from the balance-sufficiency
    check through the ledger write; two concurrent payments against the
    same near-exhausted target serialize instead of both passing the check.
  - Closing-balance recompute failures are logged, never fatal: the ledger
    stays the source of truth and the cached snapshot self-heals on the
    next recompute or query.
*/
package trade

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/orenretail/ledger-engine/inventory"
	"github.com/orenretail/ledger-engine/ledger"
)

// Edit and cancellation windows, in days from the business date.
const (
	EditWindowDays   = 7
	CancelWindowDays = 7
)

// PaymentInput is the caller's payment payload.
type PaymentInput struct {
	Target ledger.PaymentTarget
	Amount decimal.Decimal
}

// CreateInput is the creation payload.
type CreateInput struct {
	Kind              Kind
	Date              ledger.Date
	CounterpartyName  string
	CounterpartyPhone string
	Items             []LineItemInput
	Discount          Charge
	Tax               Charge
	Payments          []PaymentInput
	Actor             string
}

// UpdateInput replaces the item set and may append payments. The payment
// list must start with the already-stored payments unchanged; the tail
// beyond the stored length is what gets appended.
type UpdateInput struct {
	CounterpartyName  *string
	CounterpartyPhone *string
	Items             []LineItemInput
	Discount          Charge
	Tax               Charge
	Payments          []PaymentInput
	Actor             string
}

// AdjustmentInput is a manual cash-in/cash-out ledger movement (opening
// floats, expenses paid straight from the drawer).
type AdjustmentInput struct {
	Date      *ledger.Date // nil = today
	Target    ledger.PaymentTarget
	Amount    decimal.Decimal
	Direction ledger.Direction
	Note      string
	Actor     string
}

// CreateResult is the creation response: the persisted transaction and the
// stock deltas that were applied for it.
type CreateResult struct {
	Transaction        Transaction            `json:"transaction"`
	AppliedStockDeltas []inventory.StockDelta `json:"applied_stock_deltas"`
}

// Orchestrator wires the pipelines together.
type Orchestrator struct {
	store Store
	calc  *ledger.Calculator
	locks *ledger.KeyedLock
	clock ledger.Clock
	log   *logrus.Entry
}

func NewOrchestrator(store Store, calc *ledger.Calculator, clock ledger.Clock, log *logrus.Entry) *Orchestrator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Orchestrator{
		store: store,
		calc:  calc,
		locks: ledger.NewKeyedLock(),
		clock: clock,
		log:   log,
	}
}

// =============================================================================
// CREATE
// =============================================================================

func (o *Orchestrator) Create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	if !in.Kind.Valid() {
		return nil, &ValidationError{Field: "kind", Message: fmt.Sprintf("unknown kind %q", in.Kind)}
	}
	if in.CounterpartyName == "" {
		return nil, &ValidationError{Field: "counterparty_name", Message: "required"}
	}
	if !in.Discount.Valid() || !in.Tax.Valid() {
		return nil, &ValidationError{Field: "discount/tax", Message: "malformed charge"}
	}

	today := o.clock.Today()
	if !in.Date.Equal(today) {
		return nil, fmt.Errorf("%w: got %s, today is %s", ErrDateNotToday, in.Date, today)
	}

	items, subtotal, err := priceItems(ctx, o.store, in.Items)
	if err != nil {
		return nil, err
	}
	discountAmt, taxAmt, total := computeTotals(subtotal, in.Discount, in.Tax)

	payments, err := o.buildPayments(ctx, in.Payments)
	if err != nil {
		return nil, err
	}
	paid := sumPayments(payments)
	if paid.GreaterThan(total) {
		return nil, &PaymentExceedsTotalError{Total: total, Paid: paid}
	}

	t := Transaction{
		ID:                uuid.NewString(),
		Kind:              in.Kind,
		CounterpartyName:  in.CounterpartyName,
		CounterpartyPhone: in.CounterpartyPhone,
		Date:              in.Date,
		CreatedAt:         o.clock.Now(),
		CreatedBy:         in.Actor,
		Items:             items,
		Subtotal:          subtotal,
		Discount:          in.Discount,
		DiscountAmount:    discountAmt,
		Tax:               in.Tax,
		TaxAmount:         taxAmt,
		Total:             total,
		Payments:          payments,
		Status:            deriveStatus(total, paid),
	}
	deltas := t.StockDeltas()

	// Hold the (date, target) locks from the sufficiency check through the
	// ledger writes.
	release := o.locks.AcquireTargets(in.Date, paymentTargets(payments))
	defer release()

	if in.Kind.Direction() == ledger.Expense {
		if err := o.checkBalances(ctx, in.Date, payments); err != nil {
			return nil, err
		}
	}

	err = o.store.WithTx(ctx, func(s Store) error {
		if err := s.SaveTransaction(ctx, t); err != nil {
			return err
		}
		if err := inventory.NewAdjuster(s).Apply(ctx, deltas); err != nil {
			return err
		}
		writer := ledger.NewWriter(s, o.clock)
		for _, p := range t.Payments {
			if _, err := writer.Record(ctx, ledger.RecordInput{
				Date:      in.Date,
				Target:    p.Target,
				Amount:    p.Amount,
				Direction: in.Kind.Direction(),
				Source:    in.Kind.PaymentSource(),
				SourceID:  t.ID,
				Actor:     in.Actor,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.recompute(ctx, in.Date)
	return &CreateResult{Transaction: t, AppliedStockDeltas: deltas}, nil
}

// =============================================================================
// UPDATE
// =============================================================================

func (o *Orchestrator) Update(ctx context.Context, id string, in UpdateInput) (*Transaction, error) {
	existing, ok, err := o.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
	}
	if existing.Status == StatusCancelled {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyCancelled, id)
	}

	today := o.clock.Today()
	if existing.Status == StatusCompleted && existing.Date.DaysBetween(today) > EditWindowDays {
		return nil, fmt.Errorf("%w: completed %d days ago", ErrEditWindowExpired, existing.Date.DaysBetween(today))
	}
	if !in.Discount.Valid() || !in.Tax.Valid() {
		return nil, &ValidationError{Field: "discount/tax", Message: "malformed charge"}
	}

	items, subtotal, err := priceItems(ctx, o.store, in.Items)
	if err != nil {
		return nil, err
	}
	if err := checkCostImmutable(existing.Items, items); err != nil {
		return nil, err
	}
	discountAmt, taxAmt, total := computeTotals(subtotal, in.Discount, in.Tax)

	// Payments are append-only: the stored list must be the unchanged
	// prefix, the tail is what gets appended now.
	tail, err := o.paymentTail(ctx, existing.Payments, in.Payments)
	if err != nil {
		return nil, err
	}
	paid := existing.Paid().Add(sumPayments(tail))
	if paid.GreaterThan(total) {
		return nil, &PaymentExceedsTotalError{Total: total, Paid: paid}
	}

	updated := existing
	updated.Items = items
	updated.Subtotal = subtotal
	updated.Discount = in.Discount
	updated.DiscountAmount = discountAmt
	updated.Tax = in.Tax
	updated.TaxAmount = taxAmt
	updated.Total = total
	updated.Payments = append(append([]Payment(nil), existing.Payments...), tail...)
	updated.Status = deriveStatus(total, paid)
	if in.CounterpartyName != nil {
		updated.CounterpartyName = *in.CounterpartyName
	}
	if in.CounterpartyPhone != nil {
		updated.CounterpartyPhone = *in.CounterpartyPhone
	}

	// New payments move money today, whatever the transaction's business
	// date was.
	postDate := today

	release := o.locks.AcquireTargets(postDate, paymentTargets(tail))
	defer release()

	if existing.Kind.Direction() == ledger.Expense && len(tail) > 0 {
		if err := o.checkBalances(ctx, postDate, tail); err != nil {
			return nil, err
		}
	}

	oldDeltas := existing.StockDeltas()
	newDeltas := stockDeltas(existing.Kind, items)

	err = o.store.WithTx(ctx, func(s Store) error {
		adjuster := inventory.NewAdjuster(s)
		if err := adjuster.Reverse(ctx, oldDeltas); err != nil {
			return err
		}
		if err := adjuster.Apply(ctx, newDeltas); err != nil {
			return err
		}
		if err := s.UpdateTransaction(ctx, updated); err != nil {
			return err
		}
		writer := ledger.NewWriter(s, o.clock)
		for _, p := range tail {
			if _, err := writer.Record(ctx, ledger.RecordInput{
				Date:      postDate,
				Target:    p.Target,
				Amount:    p.Amount,
				Direction: existing.Kind.Direction(),
				Source:    existing.Kind.PaymentSource(),
				SourceID:  existing.ID,
				Actor:     in.Actor,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(tail) > 0 {
		o.recompute(ctx, postDate)
	}
	return &updated, nil
}

// =============================================================================
// CANCEL
// =============================================================================

func (o *Orchestrator) Cancel(ctx context.Context, id string, refund *ledger.PaymentTarget, actor string) (*Transaction, error) {
	t, ok, err := o.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
	}
	if t.Status == StatusCancelled {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyCancelled, id)
	}

	today := o.clock.Today()
	if t.Date.DaysBetween(today) > CancelWindowDays {
		return nil, fmt.Errorf("%w: business date %s", ErrCancelWindowExpired, t.Date)
	}

	paid := t.Paid()
	var refundTarget ledger.PaymentTarget
	if paid.IsPositive() {
		if refund == nil {
			return nil, ErrRefundRequired
		}
		// Refunds go to cash or a bank account only; never a card.
		if !refund.Valid() || refund.Kind == ledger.TargetCard {
			return nil, fmt.Errorf("%w: %s", ErrRefundTargetInvalid, refund)
		}
		if !refund.IsCash() {
			exists, err := o.store.TargetExists(ctx, *refund)
			if err != nil {
				return nil, err
			}
			if !exists {
				return nil, fmt.Errorf("%w: %s", ErrRefundTargetInvalid, refund)
			}
		}
		refundTarget = *refund
	}

	deltas := t.StockDeltas()
	updated := t
	updated.Status = StatusCancelled

	var lockTargets []ledger.PaymentTarget
	if paid.IsPositive() {
		lockTargets = append(lockTargets, refundTarget)
	}
	release := o.locks.AcquireTargets(today, lockTargets)
	defer release()

	err = o.store.WithTx(ctx, func(s Store) error {
		if paid.IsPositive() {
			if _, err := ledger.NewWriter(s, o.clock).Record(ctx, ledger.RecordInput{
				Date:      today,
				Target:    refundTarget,
				Amount:    paid,
				Direction: t.Kind.RefundDirection(),
				Source:    t.Kind.RefundSource(),
				SourceID:  t.ID,
				Actor:     actor,
			}); err != nil {
				return err
			}
		}
		if err := inventory.NewAdjuster(s).Reverse(ctx, deltas); err != nil {
			return err
		}
		return s.SetTransactionStatus(ctx, id, StatusCancelled)
	})
	if err != nil {
		return nil, err
	}

	if paid.IsPositive() {
		o.recompute(ctx, today)
	}
	return &updated, nil
}

// =============================================================================
// ADD PAYMENT
// =============================================================================

func (o *Orchestrator) AddPayment(ctx context.Context, id string, in PaymentInput, actor string) (*Transaction, error) {
	t, ok, err := o.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
	}
	if t.Status != StatusPending {
		return nil, fmt.Errorf("%w: status is %s", ErrTransactionNotPending, t.Status)
	}

	payments, err := o.buildPayments(ctx, []PaymentInput{in})
	if err != nil {
		return nil, err
	}
	if len(payments) == 0 {
		return nil, &ledger.InvalidAmountError{Amount: in.Amount, What: "payment"}
	}
	p := payments[0]

	paid := t.Paid().Add(p.Amount)
	if paid.GreaterThan(t.Total) {
		return nil, &PaymentExceedsTotalError{Total: t.Total, Paid: paid}
	}

	today := o.clock.Today()
	newStatus := deriveStatus(t.Total, paid)

	release := o.locks.AcquireTargets(today, []ledger.PaymentTarget{p.Target})
	defer release()

	if t.Kind.Direction() == ledger.Expense {
		if err := o.checkBalances(ctx, today, []Payment{p}); err != nil {
			return nil, err
		}
	}

	err = o.store.WithTx(ctx, func(s Store) error {
		if err := s.AppendPayment(ctx, id, p); err != nil {
			return err
		}
		if err := s.SetTransactionStatus(ctx, id, newStatus); err != nil {
			return err
		}
		_, err := ledger.NewWriter(s, o.clock).Record(ctx, ledger.RecordInput{
			Date:      today,
			Target:    p.Target,
			Amount:    p.Amount,
			Direction: t.Kind.Direction(),
			Source:    t.Kind.PaymentSource(),
			SourceID:  t.ID,
			Actor:     actor,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	o.recompute(ctx, today)

	t.Payments = append(t.Payments, p)
	t.Status = newStatus
	return &t, nil
}

// =============================================================================
// MANUAL ADJUSTMENT
// =============================================================================

// RecordAdjustment posts a manual ledger movement outside any transaction.
func (o *Orchestrator) RecordAdjustment(ctx context.Context, in AdjustmentInput) (ledger.Entry, error) {
	date := o.clock.Today()
	if in.Date != nil {
		date = *in.Date
	}
	if in.Direction != ledger.Income && in.Direction != ledger.Expense {
		return ledger.Entry{}, &ValidationError{Field: "direction", Message: "must be income or expense"}
	}
	if err := o.requireTarget(ctx, in.Target); err != nil {
		return ledger.Entry{}, err
	}

	release := o.locks.AcquireTargets(date, []ledger.PaymentTarget{in.Target})
	defer release()

	if in.Direction == ledger.Expense {
		if err := o.checkBalances(ctx, date, []Payment{{Target: in.Target, Amount: in.Amount}}); err != nil {
			return ledger.Entry{}, err
		}
	}

	entry, err := ledger.NewWriter(o.store, o.clock).Record(ctx, ledger.RecordInput{
		Date:      date,
		Target:    in.Target,
		Amount:    in.Amount,
		Direction: in.Direction,
		Source:    ledger.SourceManualAdjustment,
		SourceID:  in.Note,
		Actor:     in.Actor,
	})
	if err != nil {
		return ledger.Entry{}, err
	}

	o.recompute(ctx, date)
	return entry, nil
}

// =============================================================================
// READS
// =============================================================================

func (o *Orchestrator) Get(ctx context.Context, id string) (*Transaction, error) {
	t, ok, err := o.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
	}
	return &t, nil
}

func (o *Orchestrator) List(ctx context.Context, f TransactionFilter) ([]Transaction, error) {
	return o.store.ListTransactions(ctx, f)
}

// =============================================================================
// INTERNALS
// =============================================================================

// buildPayments filters zero/negative amounts, validates targets, and
// stamps timestamps.
func (o *Orchestrator) buildPayments(ctx context.Context, inputs []PaymentInput) ([]Payment, error) {
	now := o.clock.Now()
	var payments []Payment
	for _, in := range inputs {
		if !in.Amount.IsPositive() {
			continue
		}
		if err := o.requireTarget(ctx, in.Target); err != nil {
			return nil, err
		}
		payments = append(payments, Payment{
			Target: in.Target,
			Amount: ledger.RoundMoney(in.Amount),
			At:     now,
		})
	}
	return payments, nil
}

func (o *Orchestrator) requireTarget(ctx context.Context, target ledger.PaymentTarget) error {
	if !target.Valid() {
		return fmt.Errorf("%w: %s", ledger.ErrInvalidTarget, target)
	}
	if target.IsCash() {
		return nil
	}
	exists, err := o.store.TargetExists(ctx, target)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ledger.ErrTargetNotFound, target)
	}
	return nil
}

// checkBalances asserts every target can cover its payments as of date's
// snapshot. Recompute (not the cache) is used so a stale snapshot cannot
// let an overdraft through; the caller holds the (date, target) locks.
func (o *Orchestrator) checkBalances(ctx context.Context, date ledger.Date, payments []Payment) error {
	byTarget := make(map[ledger.PaymentTarget]decimal.Decimal)
	for _, p := range payments {
		byTarget[p.Target] = byTarget[p.Target].Add(p.Amount)
	}

	snap, err := o.calc.Recompute(ctx, date)
	if err != nil {
		return fmt.Errorf("compute balance snapshot: %w", err)
	}
	for target, requested := range byTarget {
		available := snap.Balance(target)
		if available.LessThan(requested) {
			return &ledger.InsufficientBalanceError{
				Target:    target,
				Date:      date,
				Available: available,
				Requested: requested,
			}
		}
	}
	return nil
}

// paymentTail validates the append-only payment rule on edit and returns
// the new payments.
func (o *Orchestrator) paymentTail(ctx context.Context, stored []Payment, incoming []PaymentInput) ([]Payment, error) {
	if len(incoming) < len(stored) {
		return nil, &ValidationError{Field: "payments", Message: "payments are append-only; existing payments cannot be removed"}
	}
	for i, p := range stored {
		if incoming[i].Target != p.Target || !incoming[i].Amount.Equal(p.Amount) {
			return nil, &ValidationError{
				Field:   fmt.Sprintf("payments[%d]", i),
				Message: "payments are append-only; existing payments cannot be modified",
			}
		}
	}
	return o.buildPayments(ctx, incoming[len(stored):])
}

// checkCostImmutable rejects price changes for products carried over from
// the stored item set. Lines for new products may price freely.
func checkCostImmutable(old, new []LineItem) error {
	prices := make(map[string]LineItem, len(old))
	for _, li := range old {
		prices[li.ProductID] = li
	}
	for _, li := range new {
		prev, ok := prices[li.ProductID]
		if !ok {
			continue
		}
		if !li.UnitPrice.Equal(prev.UnitPrice) || !li.DozenPrice.Equal(prev.DozenPrice) {
			return fmt.Errorf("%w: product %s", ErrCostImmutable, li.ProductID)
		}
	}
	return nil
}

func (o *Orchestrator) recompute(ctx context.Context, date ledger.Date) {
	if _, err := o.calc.Recompute(ctx, date); err != nil {
		o.log.WithError(err).WithField("date", date.String()).
			Warn("closing balance recompute failed; snapshot stale until next recompute")
	}
}

func sumPayments(payments []Payment) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range payments {
		sum = sum.Add(p.Amount)
	}
	return sum
}

func paymentTargets(payments []Payment) []ledger.PaymentTarget {
	targets := make([]ledger.PaymentTarget, 0, len(payments))
	for _, p := range payments {
		targets = append(targets, p.Target)
	}
	return targets
}
