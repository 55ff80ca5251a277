package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/token-ledger/internal/models"
	"github.com/sheikh-saqib/token-ledger/internal/storage/memory"
)

// brokenCommitStore reads fine but cannot write postings.
type brokenCommitStore struct {
	*memory.MemoryLedgerStore
}

func (s brokenCommitStore) Commit(ctx context.Context, posting models.Posting) (map[string]int64, error) {
	return nil, errors.New("i/o timeout")
}

func TestStoreFailureSurfacesAsUnavailable(t *testing.T) {
	store := brokenCommitStore{memory.NewMemoryLedgerStore()}
	l := NewLedger(store)
	ctx := context.Background()

	alice, err := l.OpenAccount(ctx, "alice", "hash")
	require.NoError(t, err)
	bob, err := l.OpenAccount(ctx, "bob", "hash")
	require.NoError(t, err)
	_, err = store.ApplyBalanceDelta(ctx, alice.ID, 10000)
	require.NoError(t, err)

	_, err = l.GrantAirdrop(ctx, bob.ID, 10000)
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)

	_, err = l.Transfer(ctx, alice.ID, bob.ID, tokens("30"))
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)

	// not applied: balances and log untouched
	balance, err := l.GetBalance(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "100.00", balance)
	account, err := l.Account(ctx, bob.ID)
	require.NoError(t, err)
	assert.False(t, account.AirdropGranted)
	history, err := l.GetHistory(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestOutcomeLabels(t *testing.T) {
	assert.Equal(t, "ok", outcome(nil))
	assert.Equal(t, "recipient_not_found", outcome(models.ErrRecipientNotFound))
	assert.Equal(t, "not_found", outcome(models.ErrNotFound))
	assert.Equal(t, "insufficient_balance", outcome(models.ErrInsufficientBalance))
	assert.Equal(t, "store_unavailable", outcome(models.Unavailable("commit", errors.New("eof"))))
}
