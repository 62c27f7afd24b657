/*
Package wallet provides the resource wallet engine.

PURPOSE:
  This package contains the core types and logic for tracking purchasable
  entitlements per user: project vouchers, facilitator seats, and
  storyteller seats. Balances are never stored as the primary record;
  they are derived from an append-only transaction ledger.

KEY CONCEPTS IN THIS FILE (types.go):
  - ResourceType: One of the three wallet counters
  - Amount: A signed quantity of a resource
  - Transaction: An immutable ledger entry recording a balance change
  - Balance: The derived per-user snapshot of all three counters

DESIGN PRINCIPLES:
  1. Immutability: Transactions are never modified, only reversed
  2. Type Safety: ResourceType is a closed enum, not loose strings
  3. Auditability: Every transaction carries a kind, a correlation
     reference, and an idempotency key

USAGE:
  tx := wallet.Transaction{
      UserID:       "user-123",
      Resource:     wallet.ResourceFacilitatorSeats,
      Delta:        wallet.Units(-1),
      Kind:         wallet.TxConsume,
      CorrelationRef: "inv-abc",
  }

SEE ALSO:
  - ledger.go: Balance derivation and the atomic consume guard
  - validate.go: Pure validation against a balance snapshot
  - store.go: Persistence interface
*/
package wallet

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RESOURCE TYPES - The three wallet counters
// =============================================================================

// ResourceType identifies one of the wallet's counters.
type ResourceType string

const (
	ResourceProjectVouchers  ResourceType = "project_vouchers"
	ResourceFacilitatorSeats ResourceType = "facilitator_seats"
	ResourceStorytellerSeats ResourceType = "storyteller_seats"
)

// AllResources lists every resource type in a stable order.
// Used wherever the full wallet must be walked (grants, balance DTOs).
var AllResources = []ResourceType{
	ResourceProjectVouchers,
	ResourceFacilitatorSeats,
	ResourceStorytellerSeats,
}

// Valid reports whether r is one of the known resource types.
func (r ResourceType) Valid() bool {
	switch r {
	case ResourceProjectVouchers, ResourceFacilitatorSeats, ResourceStorytellerSeats:
		return true
	}
	return false
}

// =============================================================================
// AMOUNT - Signed resource quantity
// =============================================================================

// Amount is a signed quantity of a resource. Seats and vouchers are whole
// units today, but the ledger keeps decimal precision so fractional
// entitlements (promo credits, partial refunds) never need a schema change.
type Amount struct {
	Value decimal.Decimal
}

// Units builds an Amount from a whole number of units.
func Units(n int64) Amount {
	return Amount{Value: decimal.NewFromInt(n)}
}

// MustParseAmount parses a decimal string, returning zero on failure.
// Used when rehydrating ledger rows; the store wrote the value, so a
// parse failure means a corrupted row, not user input.
func MustParseAmount(s string) Amount {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{Value: decimal.Zero}
	}
	return Amount{Value: d}
}

func (a Amount) Add(b Amount) Amount       { return Amount{Value: a.Value.Add(b.Value)} }
func (a Amount) Sub(b Amount) Amount       { return Amount{Value: a.Value.Sub(b.Value)} }
func (a Amount) Neg() Amount               { return Amount{Value: a.Value.Neg()} }
func (a Amount) IsNegative() bool          { return a.Value.IsNegative() }
func (a Amount) IsZero() bool              { return a.Value.IsZero() }
func (a Amount) IsPositive() bool          { return a.Value.IsPositive() }
func (a Amount) LessThan(b Amount) bool    { return a.Value.LessThan(b.Value) }
func (a Amount) GreaterThan(b Amount) bool { return a.Value.GreaterThan(b.Value) }
func (a Amount) Int64() int64              { return a.Value.IntPart() }
func (a Amount) String() string            { return a.Value.String() }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type TransactionID string

// =============================================================================
// TRANSACTION - Atomic change to a wallet counter
// =============================================================================

// TransactionKind classifies why a balance changed.
type TransactionKind string

const (
	TxPurchase TransactionKind = "purchase" // Paid package applied to the wallet
	TxGrant    TransactionKind = "grant"    // Non-purchase grant (promo, admin, signup bonus)
	TxConsume  TransactionKind = "consume"  // Seat or voucher spent
	TxRefund   TransactionKind = "refund"   // Compensating entry restoring a consumption
	TxExpire   TransactionKind = "expire"   // Entitlement removed by policy
)

// Transaction is an immutable ledger entry. Corrections are made by
// appending a refund with the same correlation reference, never by
// editing or deleting.
type Transaction struct {
	ID       TransactionID
	UserID   UserID
	Resource ResourceType
	Delta    Amount
	Kind     TransactionKind

	// CorrelationRef ties the transaction to the business event that
	// caused it: an invitation id, a project id, a purchase event id.
	// Refund idempotency is keyed on it.
	CorrelationRef string

	Reason         string
	IdempotencyKey string

	// Audit fields
	CreatedBy string // actor id, or "system"
	CreatedAt time.Time
}

// =============================================================================
// BALANCE - Derived per-user snapshot
// =============================================================================

// Balance is the derived state of a wallet: the sum of all ledger
// transactions per resource type. A user with no transactions has a
// zero balance; a missing wallet is not an error.
type Balance struct {
	UserID   UserID
	Counters map[ResourceType]Amount
	AsOf     time.Time
}

// NewBalance returns a zero balance for the given user.
func NewBalance(userID UserID) Balance {
	counters := make(map[ResourceType]Amount, len(AllResources))
	for _, r := range AllResources {
		counters[r] = Units(0)
	}
	return Balance{UserID: userID, Counters: counters, AsOf: time.Now().UTC()}
}

// Get returns the counter for a resource type, zero if absent.
func (b Balance) Get(r ResourceType) Amount {
	if a, ok := b.Counters[r]; ok {
		return a
	}
	return Units(0)
}

// Apply returns a copy of the balance with tx folded in.
func (b Balance) Apply(tx Transaction) Balance {
	counters := make(map[ResourceType]Amount, len(b.Counters))
	for r, a := range b.Counters {
		counters[r] = a
	}
	counters[tx.Resource] = b.Get(tx.Resource).Add(tx.Delta)
	return Balance{UserID: b.UserID, Counters: counters, AsOf: b.AsOf}
}

// Bundle is a set of amounts across resource types, used for grants and
// validation requirements. Absent resource types mean zero.
type Bundle map[ResourceType]int64

// IsZero reports whether the bundle requests nothing.
func (g Bundle) IsZero() bool {
	for _, n := range g {
		if n != 0 {
			return false
		}
	}
	return true
}
