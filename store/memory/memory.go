/*
Package memory provides an in-memory implementation of every store
interface the engine defines. Used by tests and demos; the production
implementation is store/sqlite.

ROLLBACK SEMANTICS:
  WithTx deep-copies the whole state up front and restores it when the
  callback fails, so the unit-of-work contract matches the SQLite store:
  all-or-nothing across transactions, stock, and ledger entries.
*/
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/orenretail/ledger-engine/inventory"
	"github.com/orenretail/ledger-engine/ledger"
	"github.com/orenretail/ledger-engine/trade"
)

type state struct {
	entries       []ledger.Entry
	snapshots     map[ledger.Date]ledger.Snapshot
	opening       map[ledger.Date]map[ledger.PaymentTarget]decimal.Decimal
	confirmations map[ledger.Date]ledger.Confirmation
	bankAccounts  map[string]struct{}
	cards         map[string]struct{}
	products      map[string]inventory.Product
	transactions  map[string]trade.Transaction
}

func newState() *state {
	return &state{
		snapshots:     make(map[ledger.Date]ledger.Snapshot),
		opening:       make(map[ledger.Date]map[ledger.PaymentTarget]decimal.Decimal),
		confirmations: make(map[ledger.Date]ledger.Confirmation),
		bankAccounts:  make(map[string]struct{}),
		cards:         make(map[string]struct{}),
		products:      make(map[string]inventory.Product),
		transactions:  make(map[string]trade.Transaction),
	}
}

func (s *state) clone() *state {
	c := newState()
	c.entries = append([]ledger.Entry(nil), s.entries...)
	for k, v := range s.snapshots {
		v.Balances = cloneBalances(v.Balances)
		c.snapshots[k] = v
	}
	for k, v := range s.opening {
		c.opening[k] = cloneBalances(v)
	}
	for k, v := range s.confirmations {
		c.confirmations[k] = v
	}
	for k := range s.bankAccounts {
		c.bankAccounts[k] = struct{}{}
	}
	for k := range s.cards {
		c.cards[k] = struct{}{}
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = cloneTransaction(v)
	}
	return c
}

func cloneBalances(in map[ledger.PaymentTarget]decimal.Decimal) map[ledger.PaymentTarget]decimal.Decimal {
	out := make(map[ledger.PaymentTarget]decimal.Decimal, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneTransaction(t trade.Transaction) trade.Transaction {
	t.Items = append([]trade.LineItem(nil), t.Items...)
	t.Payments = append([]trade.Payment(nil), t.Payments...)
	return t
}

// Store is the in-memory trade.Store.
type Store struct {
	mu sync.RWMutex
	st *state
}

var _ trade.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: newState()}
}

// =============================================================================
// FIXTURE SEEDING (not part of the store interfaces)
// =============================================================================

// AddBankAccount registers a bank account id.
func (m *Store) AddBankAccount(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.bankAccounts[id] = struct{}{}
}

// AddCard registers a card id.
func (m *Store) AddCard(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.cards[id] = struct{}{}
}

// =============================================================================
// ledger.EntryStore
// =============================================================================

func (m *Store) AppendEntry(ctx context.Context, e ledger.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.entries = append(m.st.entries, e)
	return nil
}

func (m *Store) EntriesOn(ctx context.Context, date ledger.Date) ([]ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.Entry
	for _, e := range m.st.entries {
		if e.Date == date {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Store) EntriesBySource(ctx context.Context, sourceID string) ([]ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.Entry
	for _, e := range m.st.entries {
		if e.SourceID == sourceID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Store) FirstEntryDate(ctx context.Context) (ledger.Date, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var first ledger.Date
	found := false
	for _, e := range m.st.entries {
		if !found || e.Date.Before(first) {
			first = e.Date
			found = true
		}
	}
	return first, found, nil
}

// =============================================================================
// ledger.SnapshotStore
// =============================================================================

func (m *Store) SaveSnapshot(ctx context.Context, s ledger.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.Balances = cloneBalances(s.Balances)
	m.st.snapshots[s.Date] = s
	return nil
}

func (m *Store) GetSnapshot(ctx context.Context, date ledger.Date) (ledger.Snapshot, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.st.snapshots[date]
	if !ok {
		return ledger.Snapshot{}, false, nil
	}
	s.Balances = cloneBalances(s.Balances)
	return s, true, nil
}

func (m *Store) OpeningBalances(ctx context.Context, date ledger.Date) (map[ledger.PaymentTarget]decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneBalances(m.st.opening[date]), nil
}

func (m *Store) SetOpeningBalance(ctx context.Context, date ledger.Date, target ledger.PaymentTarget, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.st.opening[date] == nil {
		m.st.opening[date] = make(map[ledger.PaymentTarget]decimal.Decimal)
	}
	m.st.opening[date][target] = amount
	return nil
}

func (m *Store) FirstOpeningDate(ctx context.Context) (ledger.Date, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var first ledger.Date
	found := false
	for d := range m.st.opening {
		if !found || d.Before(first) {
			first = d
			found = true
		}
	}
	return first, found, nil
}

// =============================================================================
// ledger.ConfirmationStore
// =============================================================================

func (m *Store) GetConfirmation(ctx context.Context, date ledger.Date) (ledger.Confirmation, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.st.confirmations[date]
	return c, ok, nil
}

func (m *Store) SaveConfirmation(ctx context.Context, c ledger.Confirmation) (ledger.Confirmation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.st.confirmations[c.Date]; ok {
		return existing, nil
	}
	m.st.confirmations[c.Date] = c
	return c, nil
}

// =============================================================================
// ledger.TargetRegistry
// =============================================================================

func (m *Store) TargetExists(ctx context.Context, target ledger.PaymentTarget) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch target.Kind {
	case ledger.TargetCash:
		return true, nil
	case ledger.TargetBank:
		_, ok := m.st.bankAccounts[target.AccountID]
		return ok, nil
	case ledger.TargetCard:
		_, ok := m.st.cards[target.AccountID]
		return ok, nil
	default:
		return false, nil
	}
}

// =============================================================================
// inventory.ProductStore
// =============================================================================

func (m *Store) GetProduct(ctx context.Context, id string) (inventory.Product, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.st.products[id]
	return p, ok, nil
}

func (m *Store) AdjustQuantity(ctx context.Context, id string, loc inventory.Location, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.st.products[id]
	if !ok {
		return fmt.Errorf("%w: %s", inventory.ErrProductNotFound, id)
	}
	have := p.Quantity(loc)
	if have+delta < 0 {
		return &inventory.NegativeStockError{ProductID: id, Location: loc, Have: have, Delta: delta}
	}
	if loc == inventory.LocationWarehouse {
		p.WarehouseQty += delta
	} else {
		p.FrontQty += delta
	}
	m.st.products[id] = p
	return nil
}

func (m *Store) PutProduct(ctx context.Context, p inventory.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.products[p.ID] = p
	return nil
}

// =============================================================================
// trade.TransactionStore
// =============================================================================

func (m *Store) SaveTransaction(ctx context.Context, t trade.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.st.transactions[t.ID]; exists {
		return fmt.Errorf("transaction %s already exists", t.ID)
	}
	m.st.transactions[t.ID] = cloneTransaction(t)
	return nil
}

func (m *Store) GetTransaction(ctx context.Context, id string) (trade.Transaction, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.st.transactions[id]
	if !ok {
		return trade.Transaction{}, false, nil
	}
	return cloneTransaction(t), true, nil
}

func (m *Store) UpdateTransaction(ctx context.Context, t trade.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.st.transactions[t.ID]; !ok {
		return fmt.Errorf("%w: %s", trade.ErrTransactionNotFound, t.ID)
	}
	m.st.transactions[t.ID] = cloneTransaction(t)
	return nil
}

func (m *Store) AppendPayment(ctx context.Context, id string, p trade.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.st.transactions[id]
	if !ok {
		return fmt.Errorf("%w: %s", trade.ErrTransactionNotFound, id)
	}
	t = cloneTransaction(t)
	t.Payments = append(t.Payments, p)
	m.st.transactions[id] = t
	return nil
}

func (m *Store) SetTransactionStatus(ctx context.Context, id string, s trade.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.st.transactions[id]
	if !ok {
		return fmt.Errorf("%w: %s", trade.ErrTransactionNotFound, id)
	}
	t.Status = s
	m.st.transactions[id] = t
	return nil
}

func (m *Store) ListTransactions(ctx context.Context, f trade.TransactionFilter) ([]trade.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []trade.Transaction
	for _, t := range m.st.transactions {
		if f.Kind != nil && t.Kind != *f.Kind {
			continue
		}
		if f.From != nil && t.Date.Before(*f.From) {
			continue
		}
		if f.To != nil && t.Date.After(*f.To) {
			continue
		}
		out = append(out, cloneTransaction(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// =============================================================================
// UNIT OF WORK
// =============================================================================

// WithTx snapshots the state, runs fn against this store, and restores the
// snapshot when fn fails. Writers racing a failing unit of work can be
// rolled back with it; callers serialize money paths via KeyedLock.
func (m *Store) WithTx(ctx context.Context, fn func(trade.Store) error) error {
	m.mu.Lock()
	backup := m.st.clone()
	m.mu.Unlock()

	if err := fn(&txView{Store: m}); err != nil {
		m.mu.Lock()
		m.st = backup
		m.mu.Unlock()
		return err
	}
	return nil
}

// txView delegates to the parent; nested WithTx joins the outer unit of
// work instead of taking another snapshot.
type txView struct {
	*Store
}

func (v *txView) WithTx(ctx context.Context, fn func(trade.Store) error) error {
	return fn(v)
}
