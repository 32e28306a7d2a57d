/*
store.go - Aggregate persistence interface for the orchestrator

PURPOSE:
  The orchestrator needs every store at once: entries, snapshots,
  confirmations, the account registry, products, and transactions - plus a
  unit-of-work so that {transaction row, stock deltas, ledger entries} are
  committed all-or-nothing.

  Implementations: store/memory (tests, demos) and store/sqlite
  (production).
*/
package trade

import (
	"context"

	"github.com/orenretail/ledger-engine/inventory"
	"github.com/orenretail/ledger-engine/ledger"
)

// TransactionFilter narrows ListTransactions.
type TransactionFilter struct {
	Kind *Kind
	From *ledger.Date
	To   *ledger.Date
}

// TransactionStore persists transactions with their items and payments.
type TransactionStore interface {
	// SaveTransaction inserts a new transaction.
	SaveTransaction(ctx context.Context, t Transaction) error

	GetTransaction(ctx context.Context, id string) (Transaction, bool, error)

	// UpdateTransaction replaces the stored transaction (items, totals,
	// payments, counterparty, status) wholesale.
	UpdateTransaction(ctx context.Context, t Transaction) error

	// AppendPayment appends one payment to a transaction.
	AppendPayment(ctx context.Context, id string, p Payment) error

	// SetTransactionStatus updates only the status.
	SetTransactionStatus(ctx context.Context, id string, s Status) error

	ListTransactions(ctx context.Context, f TransactionFilter) ([]Transaction, error)
}

// Store aggregates every persistence interface the orchestrator touches.
type Store interface {
	ledger.EntryStore
	ledger.SnapshotStore
	ledger.ConfirmationStore
	ledger.TargetRegistry
	inventory.ProductStore
	TransactionStore

	// WithTx executes fn within one atomic unit of work. If fn returns an
	// error every write made through the passed Store is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
