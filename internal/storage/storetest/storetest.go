// Package storetest holds behaviour checks every LedgerStore backend must pass.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	interfaces "github.com/sheikh-saqib/token-ledger/internal/interfaces"
	"github.com/sheikh-saqib/token-ledger/internal/models"
)

// Run exercises a fresh store from newStore in each subtest.
func Run(t *testing.T, newStore func(t *testing.T) interfaces.LedgerStore) {
	t.Helper()

	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newStore(t)) })
	t.Run("DuplicateIdentity", func(t *testing.T) { testDuplicateIdentity(t, newStore(t)) })
	t.Run("ApplyBalanceDelta", func(t *testing.T) { testApplyBalanceDelta(t, newStore(t)) })
	t.Run("ConcurrentDeltas", func(t *testing.T) { testConcurrentDeltas(t, newStore(t)) })
	t.Run("AppendAndList", func(t *testing.T) { testAppendAndList(t, newStore(t)) })
	t.Run("CommitTransfer", func(t *testing.T) { testCommitTransfer(t, newStore(t)) })
	t.Run("CommitRejectsNegative", func(t *testing.T) { testCommitRejectsNegative(t, newStore(t)) })
	t.Run("CommitAirdropOnce", func(t *testing.T) { testCommitAirdropOnce(t, newStore(t)) })
}

func mustCreate(t *testing.T, store interfaces.LedgerStore, userName string) models.Account {
	t.Helper()
	account := models.Account{
		ID:        uuid.NewString(),
		UserName:  userName,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, store.CreateAccount(context.Background(), account))
	return account
}

func transferTx(from, to string, amount int64) models.Transaction {
	return models.Transaction{
		ID:        uuid.NewString(),
		Sender:    from,
		Recipient: to,
		Amount:    amount,
		Kind:      models.KindTransfer,
		CreatedAt: time.Now().UTC(),
	}
}

func airdropTx(to string, amount int64) models.Transaction {
	return models.Transaction{
		ID:        uuid.NewString(),
		Recipient: to,
		Amount:    amount,
		Kind:      models.KindAirdrop,
		CreatedAt: time.Now().UTC(),
	}
}

func testCreateAndGet(t *testing.T, store interfaces.LedgerStore) {
	ctx := context.Background()
	alice := mustCreate(t, store, "alice")
	bob := mustCreate(t, store, "bob")

	got, err := store.GetAccount(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.UserName)
	assert.Zero(t, got.Balance)
	assert.False(t, got.AirdropGranted)

	byName, err := store.GetAccountByUserName(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, bob.ID, byName.ID)

	_, err = store.GetAccount(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = store.GetAccountByUserName(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)

	all, err := store.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, alice.ID, all[0].ID)
	assert.Equal(t, bob.ID, all[1].ID)
}

func testDuplicateIdentity(t *testing.T, store interfaces.LedgerStore) {
	ctx := context.Background()
	alice := mustCreate(t, store, "alice")

	err := store.CreateAccount(ctx, models.Account{ID: alice.ID, UserName: "other"})
	assert.ErrorIs(t, err, models.ErrDuplicateIdentity)

	err = store.CreateAccount(ctx, models.Account{ID: uuid.NewString(), UserName: "alice"})
	assert.ErrorIs(t, err, models.ErrDuplicateIdentity)
}

func testApplyBalanceDelta(t *testing.T, store interfaces.LedgerStore) {
	ctx := context.Background()
	alice := mustCreate(t, store, "alice")

	balance, err := store.ApplyBalanceDelta(ctx, alice.ID, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(500), balance)

	_, err = store.ApplyBalanceDelta(ctx, alice.ID, -501)
	assert.ErrorIs(t, err, models.ErrNegativeBalance)

	balance, err = store.ApplyBalanceDelta(ctx, alice.ID, -500)
	require.NoError(t, err)
	assert.Zero(t, balance)

	_, err = store.ApplyBalanceDelta(ctx, "missing", 1)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func testConcurrentDeltas(t *testing.T, store interfaces.LedgerStore) {
	ctx := context.Background()
	alice := mustCreate(t, store, "alice")
	_, err := store.ApplyBalanceDelta(ctx, alice.ID, 1000)
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.ApplyBalanceDelta(ctx, alice.ID, -100); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	got, err := store.GetAccount(ctx, alice.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Balance)
}

func testAppendAndList(t *testing.T, store interfaces.LedgerStore) {
	ctx := context.Background()
	alice := mustCreate(t, store, "alice")
	bob := mustCreate(t, store, "bob")
	carol := mustCreate(t, store, "carol")

	first, err := store.AppendTransaction(ctx, airdropTx(alice.ID, 100))
	require.NoError(t, err)
	second, err := store.AppendTransaction(ctx, transferTx(alice.ID, bob.ID, 40))
	require.NoError(t, err)
	third, err := store.AppendTransaction(ctx, transferTx(bob.ID, carol.ID, 10))
	require.NoError(t, err)

	history, err := store.ListByAccount(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, first, history[0].ID)
	assert.Equal(t, second, history[1].ID)

	history, err = store.ListByAccount(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second, history[0].ID)
	assert.Equal(t, third, history[1].ID)

	history, err = store.ListByAccount(ctx, carol.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, third, history[0].ID)

	_, err = store.AppendTransaction(ctx, models.Transaction{Recipient: alice.ID, Amount: 0, Kind: models.KindAirdrop})
	assert.ErrorIs(t, err, models.ErrInvalidAmount)
}

func testCommitTransfer(t *testing.T, store interfaces.LedgerStore) {
	ctx := context.Background()
	alice := mustCreate(t, store, "alice")
	bob := mustCreate(t, store, "bob")
	_, err := store.ApplyBalanceDelta(ctx, alice.ID, 10000)
	require.NoError(t, err)

	tx := transferTx(alice.ID, bob.ID, 3000)
	balances, err := store.Commit(ctx, models.NewTransferPosting(tx))
	require.NoError(t, err)
	assert.Equal(t, int64(7000), balances[alice.ID])
	assert.Equal(t, int64(3000), balances[bob.ID])

	history, err := store.ListByAccount(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, tx.ID, history[0].ID)
	assert.Equal(t, alice.ID, history[0].Sender)
	assert.Equal(t, int64(3000), history[0].Amount)
	assert.Equal(t, models.KindTransfer, history[0].Kind)
}

func testCommitRejectsNegative(t *testing.T, store interfaces.LedgerStore) {
	ctx := context.Background()
	alice := mustCreate(t, store, "alice")
	bob := mustCreate(t, store, "bob")
	_, err := store.ApplyBalanceDelta(ctx, alice.ID, 100)
	require.NoError(t, err)

	_, err = store.Commit(ctx, models.NewTransferPosting(transferTx(alice.ID, bob.ID, 101)))
	assert.ErrorIs(t, err, models.ErrNegativeBalance)

	_, err = store.Commit(ctx, models.NewTransferPosting(transferTx(alice.ID, "missing", 1)))
	assert.ErrorIs(t, err, models.ErrNotFound)

	// nothing from the failed postings may be visible
	for _, id := range []string{alice.ID, bob.ID} {
		history, err := store.ListByAccount(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, history)
	}
	got, err := store.GetAccount(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Balance)
	got, err = store.GetAccount(ctx, bob.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Balance)
}

func testCommitAirdropOnce(t *testing.T, store interfaces.LedgerStore) {
	ctx := context.Background()
	alice := mustCreate(t, store, "alice")

	balances, err := store.Commit(ctx, models.NewAirdropPosting(airdropTx(alice.ID, 10000)))
	require.NoError(t, err)
	assert.Equal(t, int64(10000), balances[alice.ID])

	_, err = store.Commit(ctx, models.NewAirdropPosting(airdropTx(alice.ID, 10000)))
	assert.ErrorIs(t, err, models.ErrAlreadyGranted)

	got, err := store.GetAccount(ctx, alice.ID)
	require.NoError(t, err)
	assert.True(t, got.AirdropGranted)
	assert.Equal(t, int64(10000), got.Balance)

	history, err := store.ListByAccount(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.KindAirdrop, history[0].Kind)
	assert.Empty(t, history[0].Sender)
}
