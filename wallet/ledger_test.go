package wallet_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/saga/wallet-engine/store/sqlite"
	"github.com/saga/wallet-engine/wallet"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestLedger(t *testing.T) (*wallet.Ledger, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return wallet.NewLedger(store), store
}

func seed(t *testing.T, ledger *wallet.Ledger, userID wallet.UserID, bundle wallet.Bundle) {
	t.Helper()
	_, err := ledger.Grant(context.Background(), userID, bundle, wallet.TxGrant,
		"seed:"+string(userID), "test seed", "test")
	require.NoError(t, err)
}

// =============================================================================
// BALANCE DERIVATION TESTS
// =============================================================================

func TestLedger_UnknownUser_ZeroBalance(t *testing.T) {
	// A user with no transactions has an all-zero wallet, not an error.
	ledger, _ := newTestLedger(t)

	bal, err := ledger.Balance(context.Background(), "nobody")
	require.NoError(t, err)

	for _, r := range wallet.AllResources {
		assert.True(t, bal.Get(r).IsZero(), "resource %s should be zero", r)
	}
}

func TestLedger_BalanceIsSumOfTransactions(t *testing.T) {
	// GIVEN: Grants and consumes recorded against a wallet
	// WHEN: Reading the balance
	// THEN: Each counter equals the signed sum of its deltas

	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	seed(t, ledger, "user-1", wallet.Bundle{
		wallet.ResourceProjectVouchers:  2,
		wallet.ResourceFacilitatorSeats: 3,
	})

	_, err := ledger.Consume(ctx, "user-1", wallet.ResourceFacilitatorSeats, 1,
		"inv-1", "invitation", "user-1")
	require.NoError(t, err)

	bal, err := ledger.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), bal.Get(wallet.ResourceProjectVouchers).Int64())
	assert.Equal(t, int64(2), bal.Get(wallet.ResourceFacilitatorSeats).Int64())
	assert.Equal(t, int64(0), bal.Get(wallet.ResourceStorytellerSeats).Int64())

	// And matches a fold over the full history.
	txs, err := ledger.History(ctx, "user-1")
	require.NoError(t, err)
	derived := wallet.NewBalance("user-1")
	for _, tx := range txs {
		derived = derived.Apply(tx)
	}
	for _, r := range wallet.AllResources {
		assert.Equal(t, derived.Get(r).Int64(), bal.Get(r).Int64(), "resource %s", r)
	}
}

func TestLedger_WalletsAreIsolated(t *testing.T) {
	ledger, _ := newTestLedger(t)

	seed(t, ledger, "user-1", wallet.Bundle{wallet.ResourceProjectVouchers: 2})

	bal, err := ledger.Balance(context.Background(), "user-2")
	require.NoError(t, err)
	assert.True(t, bal.Get(wallet.ResourceProjectVouchers).IsZero())
}

// =============================================================================
// CONSUME GUARD TESTS
// =============================================================================

func TestLedger_Consume_InsufficientBalance(t *testing.T) {
	// GIVEN: Wallet with 1 facilitator seat
	// WHEN: Consuming 2 seats
	// THEN: Rejected with a deficit report; ledger unchanged

	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	seed(t, ledger, "user-1", wallet.Bundle{wallet.ResourceFacilitatorSeats: 1})

	_, err := ledger.Consume(ctx, "user-1", wallet.ResourceFacilitatorSeats, 2,
		"inv-1", "invitation", "user-1")
	require.Error(t, err)

	var insufficient *wallet.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	require.Len(t, insufficient.Deficits, 1)
	assert.Equal(t, wallet.ResourceFacilitatorSeats, insufficient.Deficits[0].Resource)
	assert.Equal(t, int64(2), insufficient.Deficits[0].Required)
	assert.Equal(t, int64(1), insufficient.Deficits[0].Available)

	// Nothing was written: the seat is still there.
	bal, err := ledger.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), bal.Get(wallet.ResourceFacilitatorSeats).Int64())
}

func TestLedger_Consume_ToExactlyZero(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	seed(t, ledger, "user-1", wallet.Bundle{wallet.ResourceProjectVouchers: 1})

	_, err := ledger.Consume(ctx, "user-1", wallet.ResourceProjectVouchers, 1,
		"proj-1", "project created", "user-1")
	require.NoError(t, err)

	bal, err := ledger.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, bal.Get(wallet.ResourceProjectVouchers).IsZero())
}

func TestLedger_Record_UnknownResource(t *testing.T) {
	ledger, _ := newTestLedger(t)

	_, err := ledger.Record(context.Background(), wallet.Transaction{
		UserID:         "user-1",
		Resource:       "magic_beans",
		Delta:          wallet.Units(1),
		Kind:           wallet.TxGrant,
		IdempotencyKey: "k-1",
	})
	assert.ErrorIs(t, err, wallet.ErrUnknownResource)
}

func TestLedger_Record_DuplicateIdempotencyKey(t *testing.T) {
	// The same idempotency key is appended at most once.
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	tx := wallet.Transaction{
		UserID:         "user-1",
		Resource:       wallet.ResourceProjectVouchers,
		Delta:          wallet.Units(1),
		Kind:           wallet.TxGrant,
		IdempotencyKey: "grant-once",
	}
	_, err := ledger.Record(ctx, tx)
	require.NoError(t, err)

	_, err = ledger.Record(ctx, tx)
	assert.ErrorIs(t, err, wallet.ErrDuplicateIdempotencyKey)

	bal, err := ledger.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), bal.Get(wallet.ResourceProjectVouchers).Int64())
}

func TestLedger_ConcurrentConsume_NeverOverConsumes(t *testing.T) {
	// GIVEN: Wallet with 5 storyteller seats
	// WHEN: 20 goroutines each try to consume 1 seat
	// THEN: Exactly 5 succeed, the rest report insufficient balance,
	//       and the final balance is exactly zero

	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	seed(t, ledger, "user-1", wallet.Bundle{wallet.ResourceStorytellerSeats: 5})

	const attempts = 20
	var wg sync.WaitGroup
	results := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = ledger.Consume(ctx, "user-1", wallet.ResourceStorytellerSeats, 1,
				fmt.Sprintf("inv-%d", i), "invitation", "user-1")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, wallet.ErrInsufficientBalance)
		}
	}
	assert.Equal(t, 5, succeeded)

	bal, err := ledger.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal.Get(wallet.ResourceStorytellerSeats).Int64())
}

// =============================================================================
// REVERSE TESTS
// =============================================================================

func TestLedger_Reverse_RefundsConsume(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	seed(t, ledger, "user-1", wallet.Bundle{wallet.ResourceFacilitatorSeats: 1})
	_, err := ledger.Consume(ctx, "user-1", wallet.ResourceFacilitatorSeats, 1,
		"inv-1", "invitation", "user-1")
	require.NoError(t, err)

	refunds, err := ledger.Reverse(ctx, "inv-1", "invitation declined", "system")
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	assert.Equal(t, wallet.TxRefund, refunds[0].Kind)
	assert.Equal(t, int64(1), refunds[0].Delta.Int64())

	bal, err := ledger.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), bal.Get(wallet.ResourceFacilitatorSeats).Int64())
}

func TestLedger_Reverse_Idempotent(t *testing.T) {
	// GIVEN: A consume already reversed
	// WHEN: Reversing the same correlation again
	// THEN: No-op, no double refund

	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	seed(t, ledger, "user-1", wallet.Bundle{wallet.ResourceFacilitatorSeats: 1})
	_, err := ledger.Consume(ctx, "user-1", wallet.ResourceFacilitatorSeats, 1,
		"inv-1", "invitation", "user-1")
	require.NoError(t, err)

	_, err = ledger.Reverse(ctx, "inv-1", "invitation declined", "system")
	require.NoError(t, err)

	refunds, err := ledger.Reverse(ctx, "inv-1", "invitation expired", "system")
	require.NoError(t, err)
	assert.Nil(t, refunds)

	bal, err := ledger.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), bal.Get(wallet.ResourceFacilitatorSeats).Int64())
}

func TestLedger_Reverse_NothingToReverse(t *testing.T) {
	ledger, _ := newTestLedger(t)

	refunds, err := ledger.Reverse(context.Background(), "no-such-correlation", "cleanup", "system")
	require.NoError(t, err)
	assert.Nil(t, refunds)
}

// =============================================================================
// GRANT TESTS
// =============================================================================

func TestLedger_Grant_MultiResourceBundle(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	txs, err := ledger.Grant(ctx, "user-1", wallet.Bundle{
		wallet.ResourceProjectVouchers:  1,
		wallet.ResourceStorytellerSeats: 2,
	}, wallet.TxPurchase, "purchase:evt-1", "Starter package", "system")
	require.NoError(t, err)
	assert.Len(t, txs, 2)

	bal, err := ledger.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), bal.Get(wallet.ResourceProjectVouchers).Int64())
	assert.Equal(t, int64(2), bal.Get(wallet.ResourceStorytellerSeats).Int64())
}

func TestLedger_Grant_IdempotentPerCorrelation(t *testing.T) {
	// A replayed grant (same correlation) changes nothing.
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	bundle := wallet.Bundle{wallet.ResourceFacilitatorSeats: 2}
	_, err := ledger.Grant(ctx, "user-1", bundle, wallet.TxPurchase, "purchase:evt-1", "package", "system")
	require.NoError(t, err)

	txs, err := ledger.Grant(ctx, "user-1", bundle, wallet.TxPurchase, "purchase:evt-1", "package", "system")
	require.NoError(t, err)
	assert.Nil(t, txs)

	bal, err := ledger.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), bal.Get(wallet.ResourceFacilitatorSeats).Int64())
}

func TestLedger_Grant_EmptyBundle(t *testing.T) {
	ledger, _ := newTestLedger(t)

	txs, err := ledger.Grant(context.Background(), "user-1", wallet.Bundle{}, wallet.TxGrant, "ref", "nothing", "system")
	require.NoError(t, err)
	assert.Nil(t, txs)
}
