/*
Package sqlite provides the SQLite-backed implementation of every storage
interface the engine defines.

PURPOSE:
  Single-file persistence for the back office. In production the same
  patterns transfer to PostgreSQL with minor dialect changes.

INTERFACES IMPLEMENTED:
  ledger.EntryStore:        ledger entries (append-only)
  ledger.SnapshotStore:     closing-balance cache + opening overrides
  ledger.ConfirmationStore: daily reconciliation rows
  ledger.TargetRegistry:    bank account / card existence
  inventory.ProductStore:   product stock and default prices
  trade.TransactionStore:   transactions with items and payments
  trade.Store:              the aggregate, with a WithTx unit of work

APPEND-ONLY ENFORCEMENT:
  ledger_entries has no UPDATE or DELETE path at all. A transaction that
  fails partway rolls back through WithTx, never by compensating deletes.

CONCURRENCY:
  Opened with WAL; a sync.Mutex serializes writing units of work. Stock
  adjustments are a single conditional UPDATE scoped to
  (product, location), so a quantity can never go negative under any
  interleaving.

DATES:
  Business dates are stored as their YYYY-MM-DD string and never pass
  through UTC. The day boundary is a local-calendar concept.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - trade/store.go: interface definitions
  - store/memory/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/orenretail/ledger-engine/inventory"
	"github.com/orenretail/ledger-engine/ledger"
	"github.com/orenretail/ledger-engine/trade"
)

// Store implements trade.Store on SQLite.
type Store struct {
	view
	db *sql.DB
	mu sync.Mutex
}

var _ trade.Store = (*Store)(nil)

// New opens (and migrates) the database at dbPath. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{view: view{q: db}, db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	-- Ledger entries (append-only)
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		entry_date TEXT NOT NULL,
		target_key TEXT NOT NULL,
		amount TEXT NOT NULL,
		direction TEXT NOT NULL,
		source TEXT NOT NULL,
		source_id TEXT,
		actor TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_entries_date ON ledger_entries(entry_date);
	CREATE INDEX IF NOT EXISTS idx_entries_date_target ON ledger_entries(entry_date, target_key);
	CREATE INDEX IF NOT EXISTS idx_entries_source ON ledger_entries(source_id);

	-- Closing balance snapshots (derived cache, one row per date+target)
	CREATE TABLE IF NOT EXISTS closing_balances (
		snapshot_date TEXT NOT NULL,
		target_key TEXT NOT NULL,
		balance TEXT NOT NULL,
		computed_at TEXT NOT NULL,
		PRIMARY KEY (snapshot_date, target_key)
	);
	-- Marker rows so an all-zero snapshot still reads back as stored
	CREATE TABLE IF NOT EXISTS closing_balance_dates (
		snapshot_date TEXT PRIMARY KEY,
		computed_at TEXT NOT NULL
	);

	-- One-time opening balance overrides
	CREATE TABLE IF NOT EXISTS opening_balances (
		balance_date TEXT NOT NULL,
		target_key TEXT NOT NULL,
		amount TEXT NOT NULL,
		PRIMARY KEY (balance_date, target_key)
	);

	-- Daily reconciliation confirmations (one row per date, system-wide)
	CREATE TABLE IF NOT EXISTS daily_confirmations (
		confirmation_date TEXT PRIMARY KEY,
		id TEXT NOT NULL,
		confirmed_by TEXT NOT NULL,
		confirmed_at TEXT NOT NULL
	);

	-- Payment target registry (maintained by the surrounding system)
	CREATE TABLE IF NOT EXISTS bank_accounts (
		id TEXT PRIMARY KEY,
		name TEXT
	);
	CREATE TABLE IF NOT EXISTS cards (
		id TEXT PRIMARY KEY,
		name TEXT
	);

	-- Products: only the stock fields and default prices this core touches
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		front_qty INTEGER NOT NULL DEFAULT 0,
		warehouse_qty INTEGER NOT NULL DEFAULT 0,
		unit_price TEXT NOT NULL DEFAULT '0',
		dozen_price TEXT NOT NULL DEFAULT '0',
		CHECK (front_qty >= 0),
		CHECK (warehouse_qty >= 0)
	);

	-- Transactions with items and payments
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		counterparty_name TEXT NOT NULL,
		counterparty_phone TEXT,
		business_date TEXT NOT NULL,
		created_at TEXT NOT NULL,
		created_by TEXT,
		subtotal TEXT NOT NULL,
		discount_type TEXT,
		discount_value TEXT NOT NULL DEFAULT '0',
		discount_amount TEXT NOT NULL DEFAULT '0',
		tax_type TEXT,
		tax_value TEXT NOT NULL DEFAULT '0',
		tax_amount TEXT NOT NULL DEFAULT '0',
		total TEXT NOT NULL,
		status TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_kind_date ON transactions(kind, business_date);

	CREATE TABLE IF NOT EXISTS line_items (
		transaction_id TEXT NOT NULL REFERENCES transactions(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		product_id TEXT NOT NULL,
		product_name TEXT NOT NULL,
		entry_mode TEXT NOT NULL,
		front_qty INTEGER NOT NULL,
		warehouse_qty INTEGER NOT NULL,
		unit_price TEXT NOT NULL,
		dozen_price TEXT NOT NULL,
		discount_type TEXT,
		discount_value TEXT NOT NULL DEFAULT '0',
		line_total TEXT NOT NULL,
		PRIMARY KEY (transaction_id, position)
	);

	CREATE TABLE IF NOT EXISTS payments (
		transaction_id TEXT NOT NULL REFERENCES transactions(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		target_key TEXT NOT NULL,
		amount TEXT NOT NULL,
		paid_at TEXT NOT NULL,
		PRIMARY KEY (transaction_id, position)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// execer abstracts *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// view is the shared query implementation over either the root connection
// or an open transaction. Store and txStore both embed it.
type view struct {
	q execer
}

// =============================================================================
// TARGET REGISTRY SEEDING
// =============================================================================

// AddBankAccount registers a bank account id so payments may reference it.
func (s *Store) AddBankAccount(ctx context.Context, id, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bank_accounts (id, name) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		id, name)
	return err
}

// AddCard registers a card id.
func (s *Store) AddCard(ctx context.Context, id, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cards (id, name) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		id, name)
	return err
}

// =============================================================================
// ENTRY STORE
// =============================================================================

func (v *view) AppendEntry(ctx context.Context, e ledger.Entry) error {
	_, err := v.q.ExecContext(ctx, `
		INSERT INTO ledger_entries
		(id, entry_date, target_key, amount, direction, source, source_id, actor, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Date.String(), e.Target.Key(), e.Amount.String(), string(e.Direction),
		string(e.Source), nullString(e.SourceID), nullString(e.Actor),
		e.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

func (v *view) EntriesOn(ctx context.Context, date ledger.Date) ([]ledger.Entry, error) {
	return v.queryEntries(ctx, `
		SELECT id, entry_date, target_key, amount, direction, source, source_id, actor, created_at
		FROM ledger_entries WHERE entry_date = ? ORDER BY created_at ASC, id ASC`,
		date.String())
}

func (v *view) EntriesBySource(ctx context.Context, sourceID string) ([]ledger.Entry, error) {
	return v.queryEntries(ctx, `
		SELECT id, entry_date, target_key, amount, direction, source, source_id, actor, created_at
		FROM ledger_entries WHERE source_id = ? ORDER BY created_at ASC, id ASC`,
		sourceID)
}

func (v *view) FirstEntryDate(ctx context.Context) (ledger.Date, bool, error) {
	return v.minDate(ctx, `SELECT MIN(entry_date) FROM ledger_entries`)
}

func (v *view) queryEntries(ctx context.Context, query string, args ...any) ([]ledger.Entry, error) {
	rows, err := v.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		var (
			e         ledger.Entry
			dateRaw   string
			targetRaw string
			amountRaw string
			sourceID  sql.NullString
			actor     sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.ID, &dateRaw, &targetRaw, &amountRaw,
			(*string)(&e.Direction), (*string)(&e.Source), &sourceID, &actor, &createdAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		if e.Date, err = ledger.ParseDate(dateRaw); err != nil {
			return nil, err
		}
		if e.Target, err = ledger.ParseTarget(targetRaw); err != nil {
			return nil, err
		}
		if e.Amount, err = decimal.NewFromString(amountRaw); err != nil {
			return nil, fmt.Errorf("parse entry amount: %w", err)
		}
		e.SourceID = sourceID.String
		e.Actor = actor.String
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (v *view) minDate(ctx context.Context, query string) (ledger.Date, bool, error) {
	var raw sql.NullString
	if err := v.q.QueryRowContext(ctx, query).Scan(&raw); err != nil {
		return ledger.Date{}, false, err
	}
	if !raw.Valid || raw.String == "" {
		return ledger.Date{}, false, nil
	}
	d, err := ledger.ParseDate(raw.String)
	if err != nil {
		return ledger.Date{}, false, err
	}
	return d, true, nil
}

// =============================================================================
// SNAPSHOT STORE
// =============================================================================

func (v *view) SaveSnapshot(ctx context.Context, snap ledger.Snapshot) error {
	date := snap.Date.String()
	computed := snap.ComputedAt.Format(time.RFC3339)

	if _, err := v.q.ExecContext(ctx,
		`DELETE FROM closing_balances WHERE snapshot_date = ?`, date); err != nil {
		return err
	}
	for target, balance := range snap.Balances {
		if _, err := v.q.ExecContext(ctx, `
			INSERT INTO closing_balances (snapshot_date, target_key, balance, computed_at)
			VALUES (?, ?, ?, ?)`,
			date, target.Key(), balance.String(), computed); err != nil {
			return err
		}
	}
	_, err := v.q.ExecContext(ctx, `
		INSERT INTO closing_balance_dates (snapshot_date, computed_at) VALUES (?, ?)
		ON CONFLICT(snapshot_date) DO UPDATE SET computed_at = excluded.computed_at`,
		date, computed)
	return err
}

func (v *view) GetSnapshot(ctx context.Context, date ledger.Date) (ledger.Snapshot, bool, error) {
	var computedRaw string
	err := v.q.QueryRowContext(ctx,
		`SELECT computed_at FROM closing_balance_dates WHERE snapshot_date = ?`,
		date.String()).Scan(&computedRaw)
	if err == sql.ErrNoRows {
		return ledger.Snapshot{}, false, nil
	}
	if err != nil {
		return ledger.Snapshot{}, false, err
	}

	balances, err := v.queryBalances(ctx,
		`SELECT target_key, balance FROM closing_balances WHERE snapshot_date = ?`,
		date.String())
	if err != nil {
		return ledger.Snapshot{}, false, err
	}

	computedAt, _ := time.Parse(time.RFC3339, computedRaw)
	return ledger.Snapshot{Date: date, Balances: balances, ComputedAt: computedAt}, true, nil
}

func (v *view) OpeningBalances(ctx context.Context, date ledger.Date) (map[ledger.PaymentTarget]decimal.Decimal, error) {
	return v.queryBalances(ctx,
		`SELECT target_key, amount FROM opening_balances WHERE balance_date = ?`,
		date.String())
}

func (v *view) SetOpeningBalance(ctx context.Context, date ledger.Date, target ledger.PaymentTarget, amount decimal.Decimal) error {
	_, err := v.q.ExecContext(ctx, `
		INSERT INTO opening_balances (balance_date, target_key, amount) VALUES (?, ?, ?)
		ON CONFLICT(balance_date, target_key) DO UPDATE SET amount = excluded.amount`,
		date.String(), target.Key(), amount.String())
	return err
}

func (v *view) FirstOpeningDate(ctx context.Context) (ledger.Date, bool, error) {
	return v.minDate(ctx, `SELECT MIN(balance_date) FROM opening_balances`)
}

func (v *view) queryBalances(ctx context.Context, query string, args ...any) (map[ledger.PaymentTarget]decimal.Decimal, error) {
	rows, err := v.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	balances := make(map[ledger.PaymentTarget]decimal.Decimal)
	for rows.Next() {
		var targetRaw, amountRaw string
		if err := rows.Scan(&targetRaw, &amountRaw); err != nil {
			return nil, err
		}
		target, err := ledger.ParseTarget(targetRaw)
		if err != nil {
			return nil, err
		}
		amount, err := decimal.NewFromString(amountRaw)
		if err != nil {
			return nil, err
		}
		balances[target] = amount
	}
	return balances, rows.Err()
}

// =============================================================================
// CONFIRMATION STORE
// =============================================================================

func (v *view) GetConfirmation(ctx context.Context, date ledger.Date) (ledger.Confirmation, bool, error) {
	var (
		c           ledger.Confirmation
		confirmedAt string
	)
	err := v.q.QueryRowContext(ctx, `
		SELECT id, confirmed_by, confirmed_at
		FROM daily_confirmations WHERE confirmation_date = ?`,
		date.String()).Scan(&c.ID, &c.ConfirmedBy, &confirmedAt)
	if err == sql.ErrNoRows {
		return ledger.Confirmation{}, false, nil
	}
	if err != nil {
		return ledger.Confirmation{}, false, err
	}
	c.Date = date
	c.ConfirmedAt, _ = time.Parse(time.RFC3339, confirmedAt)
	return c, true, nil
}

func (v *view) SaveConfirmation(ctx context.Context, c ledger.Confirmation) (ledger.Confirmation, error) {
	// First writer wins; a concurrent duplicate reads back the stored row.
	_, err := v.q.ExecContext(ctx, `
		INSERT INTO daily_confirmations (confirmation_date, id, confirmed_by, confirmed_at)
		VALUES (?, ?, ?, ?) ON CONFLICT(confirmation_date) DO NOTHING`,
		c.Date.String(), c.ID, c.ConfirmedBy, c.ConfirmedAt.Format(time.RFC3339))
	if err != nil {
		return ledger.Confirmation{}, err
	}
	stored, _, err := v.GetConfirmation(ctx, c.Date)
	return stored, err
}

// =============================================================================
// TARGET REGISTRY
// =============================================================================

func (v *view) TargetExists(ctx context.Context, target ledger.PaymentTarget) (bool, error) {
	var table string
	switch target.Kind {
	case ledger.TargetCash:
		return true, nil
	case ledger.TargetBank:
		table = "bank_accounts"
	case ledger.TargetCard:
		table = "cards"
	default:
		return false, nil
	}
	var count int
	err := v.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+table+" WHERE id = ?", target.AccountID).Scan(&count)
	return count > 0, err
}

// =============================================================================
// PRODUCT STORE
// =============================================================================

func (v *view) GetProduct(ctx context.Context, id string) (inventory.Product, bool, error) {
	var (
		p        inventory.Product
		unitRaw  string
		dozenRaw string
	)
	err := v.q.QueryRowContext(ctx, `
		SELECT id, name, front_qty, warehouse_qty, unit_price, dozen_price
		FROM products WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.FrontQty, &p.WarehouseQty, &unitRaw, &dozenRaw)
	if err == sql.ErrNoRows {
		return inventory.Product{}, false, nil
	}
	if err != nil {
		return inventory.Product{}, false, err
	}
	p.UnitPrice = mustDecimal(unitRaw)
	p.DozenPrice = mustDecimal(dozenRaw)
	return p, true, nil
}

func (v *view) AdjustQuantity(ctx context.Context, id string, loc inventory.Location, delta int64) error {
	column := "front_qty"
	if loc == inventory.LocationWarehouse {
		column = "warehouse_qty"
	}

	// Single conditional update; the WHERE clause rejects any delta that
	// would drive the quantity negative, under any interleaving.
	query := fmt.Sprintf(
		`UPDATE products SET %[1]s = %[1]s + ? WHERE id = ? AND %[1]s + ? >= 0`, column)
	res, err := v.q.ExecContext(ctx, query, delta, id, delta)
	if err != nil {
		return fmt.Errorf("adjust stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	// Distinguish a missing product from insufficient quantity.
	p, ok, err := v.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", inventory.ErrProductNotFound, id)
	}
	return &inventory.NegativeStockError{ProductID: id, Location: loc, Have: p.Quantity(loc), Delta: delta}
}

func (v *view) PutProduct(ctx context.Context, p inventory.Product) error {
	_, err := v.q.ExecContext(ctx, `
		INSERT INTO products (id, name, front_qty, warehouse_qty, unit_price, dozen_price)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			front_qty = excluded.front_qty,
			warehouse_qty = excluded.warehouse_qty,
			unit_price = excluded.unit_price,
			dozen_price = excluded.dozen_price`,
		p.ID, p.Name, p.FrontQty, p.WarehouseQty, p.UnitPrice.String(), p.DozenPrice.String())
	return err
}

// =============================================================================
// TRANSACTION STORE
// =============================================================================

func (v *view) SaveTransaction(ctx context.Context, t trade.Transaction) error {
	_, err := v.q.ExecContext(ctx, `
		INSERT INTO transactions
		(id, kind, counterparty_name, counterparty_phone, business_date, created_at, created_by,
		 subtotal, discount_type, discount_value, discount_amount,
		 tax_type, tax_value, tax_amount, total, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, string(t.Kind), t.CounterpartyName, nullString(t.CounterpartyPhone),
		t.Date.String(), t.CreatedAt.Format(time.RFC3339), nullString(t.CreatedBy),
		t.Subtotal.String(), nullString(string(t.Discount.Type)), t.Discount.Value.String(), t.DiscountAmount.String(),
		nullString(string(t.Tax.Type)), t.Tax.Value.String(), t.TaxAmount.String(),
		t.Total.String(), string(t.Status))
	if err != nil {
		return fmt.Errorf("save transaction: %w", err)
	}
	if err := v.insertItems(ctx, t.ID, t.Items); err != nil {
		return err
	}
	return v.insertPayments(ctx, t.ID, 0, t.Payments)
}

func (v *view) UpdateTransaction(ctx context.Context, t trade.Transaction) error {
	res, err := v.q.ExecContext(ctx, `
		UPDATE transactions SET
			counterparty_name = ?, counterparty_phone = ?,
			subtotal = ?, discount_type = ?, discount_value = ?, discount_amount = ?,
			tax_type = ?, tax_value = ?, tax_amount = ?, total = ?, status = ?
		WHERE id = ?`,
		t.CounterpartyName, nullString(t.CounterpartyPhone),
		t.Subtotal.String(), nullString(string(t.Discount.Type)), t.Discount.Value.String(), t.DiscountAmount.String(),
		nullString(string(t.Tax.Type)), t.Tax.Value.String(), t.TaxAmount.String(),
		t.Total.String(), string(t.Status), t.ID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", trade.ErrTransactionNotFound, t.ID)
	}

	if _, err := v.q.ExecContext(ctx, `DELETE FROM line_items WHERE transaction_id = ?`, t.ID); err != nil {
		return err
	}
	if err := v.insertItems(ctx, t.ID, t.Items); err != nil {
		return err
	}
	if _, err := v.q.ExecContext(ctx, `DELETE FROM payments WHERE transaction_id = ?`, t.ID); err != nil {
		return err
	}
	return v.insertPayments(ctx, t.ID, 0, t.Payments)
}

func (v *view) AppendPayment(ctx context.Context, id string, p trade.Payment) error {
	var next int
	err := v.q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), -1) + 1 FROM payments WHERE transaction_id = ?`,
		id).Scan(&next)
	if err != nil {
		return err
	}
	return v.insertPayments(ctx, id, next, []trade.Payment{p})
}

func (v *view) SetTransactionStatus(ctx context.Context, id string, status trade.Status) error {
	res, err := v.q.ExecContext(ctx,
		`UPDATE transactions SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", trade.ErrTransactionNotFound, id)
	}
	return nil
}

func (v *view) GetTransaction(ctx context.Context, id string) (trade.Transaction, bool, error) {
	txs, err := v.queryTransactions(ctx, `WHERE id = ?`, id)
	if err != nil || len(txs) == 0 {
		return trade.Transaction{}, false, err
	}
	return txs[0], true, nil
}

func (v *view) ListTransactions(ctx context.Context, f trade.TransactionFilter) ([]trade.Transaction, error) {
	var (
		conds []string
		args  []any
	)
	if f.Kind != nil {
		conds = append(conds, "kind = ?")
		args = append(args, string(*f.Kind))
	}
	if f.From != nil {
		conds = append(conds, "business_date >= ?")
		args = append(args, f.From.String())
	}
	if f.To != nil {
		conds = append(conds, "business_date <= ?")
		args = append(args, f.To.String())
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	return v.queryTransactions(ctx, where, args...)
}

func (v *view) insertItems(ctx context.Context, txID string, items []trade.LineItem) error {
	for i, li := range items {
		if _, err := v.q.ExecContext(ctx, `
			INSERT INTO line_items
			(transaction_id, position, product_id, product_name, entry_mode,
			 front_qty, warehouse_qty, unit_price, dozen_price,
			 discount_type, discount_value, line_total)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			txID, i, li.ProductID, li.ProductName, string(li.EntryMode),
			li.FrontQty, li.WarehouseQty, li.UnitPrice.String(), li.DozenPrice.String(),
			nullString(string(li.Discount.Type)), li.Discount.Value.String(), li.LineTotal.String()); err != nil {
			return fmt.Errorf("save line item: %w", err)
		}
	}
	return nil
}

func (v *view) insertPayments(ctx context.Context, txID string, from int, payments []trade.Payment) error {
	for i, p := range payments {
		if _, err := v.q.ExecContext(ctx, `
			INSERT INTO payments (transaction_id, position, target_key, amount, paid_at)
			VALUES (?, ?, ?, ?, ?)`,
			txID, from+i, p.Target.Key(), p.Amount.String(), p.At.Format(time.RFC3339)); err != nil {
			return fmt.Errorf("save payment: %w", err)
		}
	}
	return nil
}

func (v *view) queryTransactions(ctx context.Context, where string, args ...any) ([]trade.Transaction, error) {
	rows, err := v.q.QueryContext(ctx, `
		SELECT id, kind, counterparty_name, counterparty_phone, business_date, created_at, created_by,
		       subtotal, discount_type, discount_value, discount_amount,
		       tax_type, tax_value, tax_amount, total, status
		FROM transactions `+where+` ORDER BY created_at ASC, id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var txs []trade.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range txs {
		if txs[i].Items, err = v.loadItems(ctx, txs[i].ID); err != nil {
			return nil, err
		}
		if txs[i].Payments, err = v.loadPayments(ctx, txs[i].ID); err != nil {
			return nil, err
		}
	}
	return txs, nil
}

func scanTransaction(rows *sql.Rows) (trade.Transaction, error) {
	var (
		t            trade.Transaction
		phone        sql.NullString
		createdBy    sql.NullString
		dateRaw      string
		createdAtRaw string
		subtotalRaw  string
		discType     sql.NullString
		discValue    string
		discAmount   string
		taxType      sql.NullString
		taxValue     string
		taxAmount    string
		totalRaw     string
	)
	err := rows.Scan(&t.ID, (*string)(&t.Kind), &t.CounterpartyName, &phone,
		&dateRaw, &createdAtRaw, &createdBy,
		&subtotalRaw, &discType, &discValue, &discAmount,
		&taxType, &taxValue, &taxAmount, &totalRaw, (*string)(&t.Status))
	if err != nil {
		return t, fmt.Errorf("scan transaction: %w", err)
	}

	t.CounterpartyPhone = phone.String
	t.CreatedBy = createdBy.String
	if t.Date, err = ledger.ParseDate(dateRaw); err != nil {
		return t, err
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAtRaw)
	t.Subtotal = mustDecimal(subtotalRaw)
	t.Discount = trade.Charge{Type: trade.ValueType(discType.String), Value: mustDecimal(discValue)}
	t.DiscountAmount = mustDecimal(discAmount)
	t.Tax = trade.Charge{Type: trade.ValueType(taxType.String), Value: mustDecimal(taxValue)}
	t.TaxAmount = mustDecimal(taxAmount)
	t.Total = mustDecimal(totalRaw)
	return t, nil
}

func (v *view) loadItems(ctx context.Context, txID string) ([]trade.LineItem, error) {
	rows, err := v.q.QueryContext(ctx, `
		SELECT product_id, product_name, entry_mode, front_qty, warehouse_qty,
		       unit_price, dozen_price, discount_type, discount_value, line_total
		FROM line_items WHERE transaction_id = ? ORDER BY position ASC`, txID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []trade.LineItem
	for rows.Next() {
		var (
			li        trade.LineItem
			unitRaw   string
			dozenRaw  string
			discType  sql.NullString
			discValue string
			totalRaw  string
		)
		if err := rows.Scan(&li.ProductID, &li.ProductName, (*string)(&li.EntryMode),
			&li.FrontQty, &li.WarehouseQty, &unitRaw, &dozenRaw,
			&discType, &discValue, &totalRaw); err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		li.UnitPrice = mustDecimal(unitRaw)
		li.DozenPrice = mustDecimal(dozenRaw)
		li.Discount = trade.Charge{Type: trade.ValueType(discType.String), Value: mustDecimal(discValue)}
		li.LineTotal = mustDecimal(totalRaw)
		items = append(items, li)
	}
	return items, rows.Err()
}

func (v *view) loadPayments(ctx context.Context, txID string) ([]trade.Payment, error) {
	rows, err := v.q.QueryContext(ctx, `
		SELECT target_key, amount, paid_at
		FROM payments WHERE transaction_id = ? ORDER BY position ASC`, txID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []trade.Payment
	for rows.Next() {
		var (
			p         trade.Payment
			targetRaw string
			amountRaw string
			paidAtRaw string
		)
		if err := rows.Scan(&targetRaw, &amountRaw, &paidAtRaw); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		if p.Target, err = ledger.ParseTarget(targetRaw); err != nil {
			return nil, err
		}
		p.Amount = mustDecimal(amountRaw)
		p.At, _ = time.Parse(time.RFC3339, paidAtRaw)
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// =============================================================================
// UNIT OF WORK
// =============================================================================

// WithTx runs fn against a BEGIN..COMMIT transaction; any error from fn
// rolls everything back. The mutex serializes writing units of work on
// top of WAL's single-writer rule.
func (s *Store) WithTx(ctx context.Context, fn func(trade.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{view: view{q: sqlTx}}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore is the Store view inside an open transaction. A nested WithTx
// joins the outer unit of work.
type txStore struct {
	view
}

var _ trade.Store = (*txStore)(nil)

func (ts *txStore) WithTx(ctx context.Context, fn func(trade.Store) error) error {
	return fn(ts)
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func mustDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
