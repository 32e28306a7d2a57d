/*
store.go - Persistence interfaces for the ledger engine

PURPOSE:
  Defines the interfaces between the ledger components and the database.
  Implementations live in store/memory (tests) and store/sqlite (production).

APPEND-ONLY CONTRACT:
  AppendEntry is the only entry mutation. Transactions that fail partway
  roll back through the store's unit of work, so no delete or update
  operation exists at all.
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ENTRY STORE
// =============================================================================

// EntryStore persists ledger entries.
type EntryStore interface {
	// AppendEntry persists one immutable entry.
	AppendEntry(ctx context.Context, e Entry) error

	// EntriesOn returns all entries dated exactly on date, oldest first.
	EntriesOn(ctx context.Context, date Date) ([]Entry, error)

	// EntriesBySource returns all entries produced by one source
	// transaction, oldest first.
	EntriesBySource(ctx context.Context, sourceID string) ([]Entry, error)

	// FirstEntryDate returns the earliest entry date, if any entry exists.
	FirstEntryDate(ctx context.Context) (Date, bool, error)
}

// =============================================================================
// SNAPSHOT STORE - Cached closing balances + opening-balance overrides
// =============================================================================

// SnapshotStore caches computed closing-balance snapshots. Snapshots are
// derived data: always re-derivable from the entry history, so Save
// overwrites without ceremony.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, s Snapshot) error

	// GetSnapshot returns the stored snapshot for date.
	// ok is false when none is stored.
	GetSnapshot(ctx context.Context, date Date) (Snapshot, bool, error)

	// OpeningBalances returns the one-time opening-balance overrides recorded
	// for date by the surrounding system (empty map when none).
	OpeningBalances(ctx context.Context, date Date) (map[PaymentTarget]decimal.Decimal, error)

	// SetOpeningBalance records an opening-balance override for date+target.
	SetOpeningBalance(ctx context.Context, date Date, target PaymentTarget, amount decimal.Decimal) error

	// FirstOpeningDate returns the earliest date with an opening-balance
	// override, if one was ever recorded.
	FirstOpeningDate(ctx context.Context) (Date, bool, error)
}

// =============================================================================
// CONFIRMATION STORE
// =============================================================================

// Confirmation is the system-wide per-date reconciliation acknowledgment.
// One row per calendar date; the first user to confirm satisfies it for
// everyone.
type Confirmation struct {
	ID          string
	Date        Date
	ConfirmedBy string
	ConfirmedAt time.Time
}

type ConfirmationStore interface {
	// GetConfirmation returns the confirmation row for date, if present.
	GetConfirmation(ctx context.Context, date Date) (Confirmation, bool, error)

	// SaveConfirmation persists c. If a row for c.Date already exists the
	// existing row is kept and returned unchanged (idempotent).
	SaveConfirmation(ctx context.Context, c Confirmation) (Confirmation, error)
}

// =============================================================================
// TARGET REGISTRY - Bank account / card existence checks
// =============================================================================

// TargetRegistry answers whether a non-cash payment target refers to a
// known bank account or card. Account CRUD itself belongs to the
// surrounding system.
type TargetRegistry interface {
	TargetExists(ctx context.Context, target PaymentTarget) (bool, error)
}
