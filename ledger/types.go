/*
Package ledger provides the balance ledger engine for the retail back office.

PURPOSE:
  This package contains the money primitives and the three leaf components
  the rest of the system is built on:
  - Writer: appends immutable, signed balance entries
  - Calculator: derives per-day closing balances from the entry history
  - Gate: the per-day reconciliation acknowledgment

KEY CONCEPTS IN THIS FILE (types.go):
  - Date: a business-local calendar date (NOT a timestamp)
  - PaymentTarget: cash, a bank account, or a card - the unit balances
    are tracked against
  - Entry: one immutable signed monetary movement against one target
    on one date

DESIGN PRINCIPLES:
  1. Immutability: entries are never modified, corrections append
  2. Precision: decimal.Decimal everywhere, rounded to 2 places at
     computation points, never at display time
  3. Local days: the domain's "day" boundary is a local-calendar concept;
     dates are never normalized to UTC

SEE ALSO:
  - writer.go: appending entries
  - snapshot.go: closing-balance derivation
  - confirmation.go: the daily reconciliation gate
*/
package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY
// =============================================================================

// RoundMoney rounds a monetary amount to 2 decimal places. Callers must
// multiply on unrounded operands and round the result exactly once.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// =============================================================================
// DATE - Business-local calendar date
// =============================================================================

// Date is a calendar date with no time component and no timezone.
// Comparable; usable directly as a map key.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func NewDate(year int, month time.Month, day int) Date {
	// Normalize through time.Date so Feb 30 etc. roll over consistently.
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// DateOf extracts the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) IsZero() bool { return d.Year == 0 && d.Month == 0 && d.Day == 0 }

func (d Date) Prev() Date { return d.AddDays(-1) }
func (d Date) Next() Date { return d.AddDays(1) }

func (d Date) AddDays(n int) Date {
	t := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
	return DateOf(t)
}

// DaysBetween returns the number of calendar days from d to other
// (positive when other is later).
func (d Date) DaysBetween(other Date) int {
	a := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
	b := time.Date(other.Year, other.Month, other.Day, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

func (d Date) Before(other Date) bool { return d.DaysBetween(other) > 0 }
func (d Date) After(other Date) bool  { return d.DaysBetween(other) < 0 }
func (d Date) Equal(other Date) bool  { return d == other }

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// CLOCK - Injected "today", bound to the business-local timezone
// =============================================================================

// Clock supplies the business-local notion of now/today. Injected so the
// orchestrator and the gate are testable with a fixed date.
type Clock interface {
	Now() time.Time
	Today() Date
}

// SystemClock reads the wall clock in a fixed business location.
type SystemClock struct {
	Location *time.Location
}

func NewSystemClock(loc *time.Location) *SystemClock {
	if loc == nil {
		loc = time.Local
	}
	return &SystemClock{Location: loc}
}

func (c *SystemClock) Now() time.Time { return time.Now().In(c.Location) }
func (c *SystemClock) Today() Date    { return DateOf(c.Now()) }

// FixedClock always reports the same instant. For tests.
type FixedClock struct {
	Instant time.Time
}

func (c *FixedClock) Now() time.Time { return c.Instant }
func (c *FixedClock) Today() Date    { return DateOf(c.Instant) }

// =============================================================================
// PAYMENT TARGET - cash | bank(account) | card(card)
// =============================================================================

type TargetKind string

const (
	TargetCash TargetKind = "cash"
	TargetBank TargetKind = "bank"
	TargetCard TargetKind = "card"
)

// PaymentTarget identifies what a balance is tracked against: cash as a
// whole, or one specific bank account or card. It is a tagged value type;
// AccountID is empty exactly when Kind is TargetCash. Comparable, so it is
// used directly as a map key in snapshots and the keyed lock.
type PaymentTarget struct {
	Kind      TargetKind
	AccountID string
}

func Cash() PaymentTarget          { return PaymentTarget{Kind: TargetCash} }
func Bank(id string) PaymentTarget { return PaymentTarget{Kind: TargetBank, AccountID: id} }
func Card(id string) PaymentTarget { return PaymentTarget{Kind: TargetCard, AccountID: id} }

func (t PaymentTarget) IsCash() bool { return t.Kind == TargetCash }

// Valid reports whether the tag and id are structurally consistent.
func (t PaymentTarget) Valid() bool {
	switch t.Kind {
	case TargetCash:
		return t.AccountID == ""
	case TargetBank, TargetCard:
		return t.AccountID != ""
	default:
		return false
	}
}

// Key returns a stable string form, used for lock ordering and storage.
func (t PaymentTarget) Key() string {
	if t.Kind == TargetCash {
		return string(TargetCash)
	}
	return string(t.Kind) + ":" + t.AccountID
}

func (t PaymentTarget) String() string { return t.Key() }

type targetJSON struct {
	Kind      TargetKind `json:"kind"`
	AccountID string     `json:"account_id,omitempty"`
}

func (t PaymentTarget) MarshalJSON() ([]byte, error) {
	return json.Marshal(targetJSON{Kind: t.Kind, AccountID: t.AccountID})
}

func (t *PaymentTarget) UnmarshalJSON(b []byte) error {
	var raw targetJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed := PaymentTarget{Kind: raw.Kind, AccountID: raw.AccountID}
	if !parsed.Valid() {
		return fmt.Errorf("invalid payment target: kind=%q account_id=%q", raw.Kind, raw.AccountID)
	}
	*t = parsed
	return nil
}

// ParseTarget parses the Key() form back into a target.
func ParseTarget(key string) (PaymentTarget, error) {
	if key == string(TargetCash) {
		return Cash(), nil
	}
	for _, kind := range []TargetKind{TargetBank, TargetCard} {
		prefix := string(kind) + ":"
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			return PaymentTarget{Kind: kind, AccountID: key[len(prefix):]}, nil
		}
	}
	return PaymentTarget{}, fmt.Errorf("invalid payment target key %q", key)
}

// =============================================================================
// ENTRY - Immutable signed balance movement
// =============================================================================

type Direction string

const (
	Income  Direction = "income"
	Expense Direction = "expense"
)

// SourceTag identifies which flow produced an entry.
type SourceTag string

const (
	SourcePurchasePayment  SourceTag = "purchase_payment"
	SourceSalePayment      SourceTag = "sale_payment"
	SourcePurchaseRefund   SourceTag = "purchase_refund"
	SourceSaleRefund       SourceTag = "sale_refund"
	SourceOpeningBalance   SourceTag = "opening_balance"
	SourceManualAdjustment SourceTag = "manual_adjustment"
)

// Entry is one immutable monetary movement. Amount is always positive;
// Direction carries the sign. Entries are append-only: the only deletion
// ever performed is the full compensating rollback of a transaction that
// failed to commit.
type Entry struct {
	ID        string
	Date      Date
	Target    PaymentTarget
	Amount    decimal.Decimal
	Direction Direction
	Source    SourceTag
	SourceID  string
	Actor     string
	CreatedAt time.Time
}

// Signed returns the amount with the direction applied: income positive,
// expense negative.
func (e Entry) Signed() decimal.Decimal {
	if e.Direction == Expense {
		return e.Amount.Neg()
	}
	return e.Amount
}
