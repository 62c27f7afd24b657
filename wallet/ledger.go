/*
ledger.go - Append-only wallet ledger

PURPOSE:
  The Ledger is the single gateway through which wallet balances change.
  Every purchase, grant, consumption, refund, and expiry is recorded as
  an immutable transaction. No component reads raw balance rows and
  writes them back; every mutation goes through Record, Reverse, or
  Grant.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: no update, no delete, ever
  2. NON-NEGATIVE: a consume that would take a counter negative fails
     atomically with ErrInsufficientBalance
  3. ATTRIBUTABLE: every balance change is one ledger transaction
  4. IDEMPOTENT: Reverse and Grant are no-ops when repeated for the
     same correlation reference

CORRECTIONS:
  A mistake is never edited. A compensating refund transaction is
  appended; both the original and the refund remain in the ledger.

EXAMPLE FLOW:
  1. Purchase grants 2 facilitator seats: TxPurchase +2
  2. Facilitator invited: TxConsume -1 (correlation = invitation id)
  3. Invitee declines: TxRefund +1 (same correlation)

  Ledger: [+2, -1, +1] = 2 seats

SEE ALSO:
  - store.go: Persistence contract, including the atomic consume guard
  - validate.go: Pre-flight validation against a balance snapshot
*/
package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Ledger is the authoritative balance service for wallets.
type Ledger struct {
	store Store
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// Balance returns the current derived balance for a user. Unknown users
// get an all-zero wallet; this is not an error.
func (l *Ledger) Balance(ctx context.Context, userID UserID) (Balance, error) {
	return l.store.Balance(ctx, userID)
}

// History returns the full transaction history for a user.
func (l *Ledger) History(ctx context.Context, userID UserID) ([]Transaction, error) {
	return l.store.LoadByUser(ctx, userID)
}

// Record appends a single transaction. For TxConsume the store enforces
// the non-negative guard atomically with the write; a conflicting
// concurrent write is retried once against fresh state before the
// failure is surfaced.
func (l *Ledger) Record(ctx context.Context, tx Transaction) (Transaction, error) {
	if !tx.Resource.Valid() {
		return Transaction{}, fmt.Errorf("%w: %q", ErrUnknownResource, tx.Resource)
	}
	tx = l.stamp(tx)

	err := l.store.Append(ctx, tx)
	if IsRetryable(err) {
		// One retry with a fresh read inside the store's critical
		// section. Still failing means the balance really is gone.
		err = l.store.Append(ctx, tx)
		if IsRetryable(err) {
			err = ErrInsufficientBalance
		}
	}
	if err != nil {
		// The store reports the bare sentinel; attach the deficit so
		// the caller can say how many more units are needed.
		var structured *InsufficientBalanceError
		if errors.Is(err, ErrInsufficientBalance) && !errors.As(err, &structured) {
			return Transaction{}, l.insufficiency(ctx, tx)
		}
		return Transaction{}, err
	}
	return tx, nil
}

// Consume spends whole units of a resource, tied to a correlation
// reference (invitation id, project id). It is the only way a counter
// goes down outside of expiry.
func (l *Ledger) Consume(ctx context.Context, userID UserID, resource ResourceType, units int64, correlationRef, reason, actor string) (Transaction, error) {
	return l.Record(ctx, Transaction{
		UserID:         userID,
		Resource:       resource,
		Delta:          Units(-units),
		Kind:           TxConsume,
		CorrelationRef: correlationRef,
		Reason:         reason,
		IdempotencyKey: fmt.Sprintf("consume:%s:%s", correlationRef, resource),
		CreatedBy:      actor,
	})
}

// Reverse issues compensating refund transactions for every consume
// recorded under the correlation reference. Reversing the same
// correlation twice is a no-op, not a double refund.
func (l *Ledger) Reverse(ctx context.Context, correlationRef, reason, actor string) ([]Transaction, error) {
	existing, err := l.store.ByCorrelation(ctx, correlationRef)
	if err != nil {
		return nil, err
	}

	var consumed []Transaction
	for _, tx := range existing {
		switch tx.Kind {
		case TxConsume:
			consumed = append(consumed, tx)
		case TxRefund:
			// Already reversed.
			return nil, nil
		}
	}
	if len(consumed) == 0 {
		return nil, nil
	}

	refunds := make([]Transaction, len(consumed))
	for i, tx := range consumed {
		refunds[i] = l.stamp(Transaction{
			UserID:         tx.UserID,
			Resource:       tx.Resource,
			Delta:          tx.Delta.Neg(),
			Kind:           TxRefund,
			CorrelationRef: correlationRef,
			Reason:         reason,
			IdempotencyKey: fmt.Sprintf("refund:%s:%s", correlationRef, tx.Resource),
			CreatedBy:      actor,
		})
	}

	if err := l.store.AppendBatch(ctx, refunds); err != nil {
		if errors.Is(err, ErrDuplicateIdempotencyKey) {
			// A concurrent reversal won; same outcome.
			return nil, nil
		}
		return nil, err
	}
	return refunds, nil
}

// Grant adds resources to a wallet from an external event (completed
// purchase, promo, admin adjustment). Idempotent per correlation
// reference: a retried purchase webhook never double-grants.
func (l *Ledger) Grant(ctx context.Context, userID UserID, bundle Bundle, kind TransactionKind, correlationRef, reason, actor string) ([]Transaction, error) {
	if bundle.IsZero() {
		return nil, nil
	}

	var txs []Transaction
	for _, resource := range AllResources {
		units := bundle[resource]
		if units == 0 {
			continue
		}
		txs = append(txs, l.stamp(Transaction{
			UserID:         userID,
			Resource:       resource,
			Delta:          Units(units),
			Kind:           kind,
			CorrelationRef: correlationRef,
			Reason:         reason,
			IdempotencyKey: fmt.Sprintf("grant:%s:%s", correlationRef, resource),
			CreatedBy:      actor,
		}))
	}

	if err := l.store.AppendBatch(ctx, txs); err != nil {
		if errors.Is(err, ErrDuplicateIdempotencyKey) {
			return nil, nil
		}
		return nil, err
	}
	return txs, nil
}

// stamp fills in identity and audit fields left blank by the caller.
func (l *Ledger) stamp(tx Transaction) Transaction {
	if tx.ID == "" {
		tx.ID = TransactionID(uuid.NewString())
	}
	if tx.CreatedBy == "" {
		tx.CreatedBy = "system"
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	return tx
}

// insufficiency builds the structured error for a consume that lost its
// retry, reporting the shortfall against the latest balance.
func (l *Ledger) insufficiency(ctx context.Context, tx Transaction) error {
	bal, err := l.store.Balance(ctx, tx.UserID)
	if err != nil {
		return err
	}
	return &InsufficientBalanceError{
		UserID: tx.UserID,
		Deficits: []Deficit{{
			Resource:  tx.Resource,
			Required:  tx.Delta.Neg().Int64(),
			Available: bal.Get(tx.Resource).Int64(),
		}},
	}
}
