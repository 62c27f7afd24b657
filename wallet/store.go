/*
store.go - Persistence interface for the ledger

PURPOSE:
  Defines the interface between the wallet engine and the database.
  The Store handles persistence while maintaining append-only semantics.
  Implementations exist for SQLite (store/sqlite) and memory (store/memory).

APPEND-ONLY CONTRACT:
  - Append(): single transaction write
  - AppendBatch(): atomic multi-transaction write
  - NO Update() or Delete() methods exist

IDEMPOTENCY:
  Every write may carry an idempotency key. If the key already exists,
  the write is rejected with ErrDuplicateIdempotencyKey. This is how
  webhook retries and double-clicks are made harmless.

BALANCE PROJECTION:
  The ledger is the source of truth; Balance() is a derived value.
  Implementations are free to keep a cached projection (the SQLite store
  maintains a wallets table updated in the same database transaction as
  the append), but the sum of transactions must always equal the
  projected balance.

SEE ALSO:
  - ledger.go: Higher-level service using Store
  - store/sqlite/sqlite.go: Production implementation
  - store/memory/memory.go: In-memory implementation for tests
*/
package wallet

import "context"

// Store handles persistence of ledger transactions.
// IMPORTANT: Store is APPEND-ONLY. Corrections are refund transactions.
type Store interface {
	// Append persists a transaction and atomically updates the balance
	// projection. Must fail with ErrInsufficientBalance when the entry
	// is a debit that would take the counter negative; the guard and the
	// write happen in one critical section.
	Append(ctx context.Context, tx Transaction) error

	// AppendBatch persists multiple transactions atomically.
	// Either all succeed or none do.
	AppendBatch(ctx context.Context, txs []Transaction) error

	// Load returns all transactions for a user and resource type,
	// ordered by creation time.
	Load(ctx context.Context, userID UserID, resource ResourceType) ([]Transaction, error)

	// LoadByUser returns all transactions for a user across resources.
	LoadByUser(ctx context.Context, userID UserID) ([]Transaction, error)

	// Balance returns the projected balance for a user. A user with no
	// transactions gets a zero balance, not an error.
	Balance(ctx context.Context, userID UserID) (Balance, error)

	// Exists checks whether an idempotency key has been used.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)

	// ByCorrelation returns all transactions recorded against a
	// correlation reference, in order. Used for refund idempotency.
	ByCorrelation(ctx context.Context, correlationRef string) ([]Transaction, error)
}
