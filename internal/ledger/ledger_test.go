package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/token-ledger/internal/models"
	"github.com/sheikh-saqib/token-ledger/internal/models/events"
	"github.com/sheikh-saqib/token-ledger/internal/storage/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []events.TransactionCompleted
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, topic string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event.(events.TransactionCompleted))
	return p.err
}

func newTestLedger(t *testing.T, opts ...Option) (*Ledger, *memory.MemoryLedgerStore) {
	t.Helper()
	store := memory.NewMemoryLedgerStore()
	return NewLedger(store, opts...), store
}

func openAccount(t *testing.T, l *Ledger, name string) models.Account {
	t.Helper()
	account, err := l.OpenAccount(context.Background(), name, "hash")
	require.NoError(t, err)
	return account
}

func tokens(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertReconciled(t *testing.T, l *Ledger, accountIds ...string) {
	t.Helper()
	for _, id := range accountIds {
		stored, derived, err := l.Reconcile(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, derived, stored, "account %s drifted from its log", id)
		assert.GreaterOrEqual(t, stored, int64(0))
	}
}

func TestOpenAccountDuplicateUserName(t *testing.T) {
	l, _ := newTestLedger(t)
	openAccount(t, l, "alice")

	_, err := l.OpenAccount(context.Background(), "alice", "hash")
	assert.ErrorIs(t, err, models.ErrDuplicateIdentity)
}

func TestGrantAirdropOnce(t *testing.T) {
	pub := &recordingPublisher{}
	l, _ := newTestLedger(t, WithPublisher(pub, ""))
	ctx := context.Background()
	alice := openAccount(t, l, "alice")

	tx, err := l.GrantAirdrop(ctx, alice.ID, 10000)
	require.NoError(t, err)
	assert.Equal(t, models.KindAirdrop, tx.Kind)
	assert.Empty(t, tx.Sender)
	assert.Equal(t, alice.ID, tx.Recipient)
	assert.Equal(t, int64(10000), tx.Amount)

	account, err := l.Account(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), account.Balance)
	assert.True(t, account.AirdropGranted)

	_, err = l.GrantAirdrop(ctx, alice.ID, 10000)
	assert.ErrorIs(t, err, models.ErrAlreadyGranted)

	balance, err := l.GetBalance(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "100.00", balance)

	history, err := l.GetHistory(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	require.Len(t, pub.events, 1)
	assert.Equal(t, events.TransactionCompletedTopic, pub.topics[0])
	assert.Equal(t, tx.ID, pub.events[0].TransactionID)
	assertReconciled(t, l, alice.ID)
}

func TestGrantAirdropConcurrentCallsSucceedOnce(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	alice := openAccount(t, l, "alice")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
		refused int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.GrantAirdrop(ctx, alice.ID, 10000)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				granted++
			case errors.Is(err, models.ErrAlreadyGranted):
				refused++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, granted)
	assert.Equal(t, 15, refused)
	balance, err := l.GetBalance(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "100.00", balance)
}

func TestGrantAirdropValidation(t *testing.T) {
	l, _ := newTestLedger(t)
	alice := openAccount(t, l, "alice")

	_, err := l.GrantAirdrop(context.Background(), alice.ID, 0)
	assert.ErrorIs(t, err, models.ErrInvalidAmount)

	_, err = l.GrantAirdrop(context.Background(), "missing", 10000)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestTransferScenario(t *testing.T) {
	pub := &recordingPublisher{}
	l, _ := newTestLedger(t, WithPublisher(pub, "ledger.events"))
	ctx := context.Background()
	alice := openAccount(t, l, "alice")
	bob := openAccount(t, l, "bob")
	_, err := l.GrantAirdrop(ctx, alice.ID, 10000)
	require.NoError(t, err)

	result, err := l.Transfer(ctx, alice.ID, bob.ID, tokens("30"))
	require.NoError(t, err)
	assert.Equal(t, int64(7000), result.SenderBalance)
	assert.Equal(t, int64(3000), result.RecipientBalance)
	assert.Equal(t, alice.ID, result.Transaction.Sender)
	assert.Equal(t, bob.ID, result.Transaction.Recipient)
	assert.Equal(t, int64(3000), result.Transaction.Amount)
	assert.Equal(t, models.KindTransfer, result.Transaction.Kind)

	balance, err := l.GetBalance(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "70.00", balance)
	balance, err = l.GetBalance(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, "30.00", balance)

	bobHistory, err := l.GetHistory(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, bobHistory, 1)
	assert.Equal(t, result.Transaction.ID, bobHistory[0].ID)

	aliceHistory, err := l.GetHistory(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, aliceHistory, 2)
	assert.Equal(t, models.KindAirdrop, aliceHistory[0].Kind)
	assert.Equal(t, result.Transaction.ID, aliceHistory[1].ID)

	require.Len(t, pub.topics, 2)
	assert.Equal(t, "ledger.events", pub.topics[1])
	assert.True(t, pub.events[1].Amount.Equal(tokens("30")))
	assertReconciled(t, l, alice.ID, bob.ID)
}

func TestTransferValidationOrder(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	alice := openAccount(t, l, "alice")
	bob := openAccount(t, l, "bob")

	cases := []struct {
		name   string
		from   string
		to     string
		amount string
		want   error
	}{
		// invalid amount wins over every other problem
		{name: "zero amount to self", from: alice.ID, to: alice.ID, amount: "0", want: models.ErrInvalidAmount},
		{name: "sub-cent amount", from: alice.ID, to: "missing", amount: "0.005", want: models.ErrInvalidAmount},
		{name: "negative amount", from: alice.ID, to: bob.ID, amount: "-1", want: models.ErrInvalidAmount},
		// self transfer is rejected regardless of balance or existence
		{name: "self transfer", from: alice.ID, to: alice.ID, amount: "1", want: models.ErrSelfTransfer},
		{name: "missing recipient with no funds", from: alice.ID, to: "missing", amount: "1", want: models.ErrRecipientNotFound},
		{name: "insufficient balance", from: alice.ID, to: bob.ID, amount: "0.01", want: models.ErrInsufficientBalance},
		{name: "missing sender", from: "ghost", to: bob.ID, amount: "1", want: models.ErrNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := l.Transfer(ctx, tc.from, tc.to, tokens(tc.amount))
			assert.ErrorIs(t, err, tc.want)
		})
	}

	// none of the failures may leave anything behind
	for _, id := range []string{alice.ID, bob.ID} {
		history, err := l.GetHistory(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, history)
	}
}

func TestSelfTransferWithFunds(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	alice := openAccount(t, l, "alice")
	_, err := l.GrantAirdrop(ctx, alice.ID, 10000)
	require.NoError(t, err)

	_, err = l.Transfer(ctx, alice.ID, alice.ID, tokens("1"))
	assert.ErrorIs(t, err, models.ErrSelfTransfer)
}

func TestConcurrentTransfersCannotOverdraw(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	alice := openAccount(t, l, "alice")
	bob := openAccount(t, l, "bob")
	carol := openAccount(t, l, "carol")
	_, err := l.GrantAirdrop(ctx, alice.ID, 10000)
	require.NoError(t, err)

	// 60 + 60 > 100: each fits alone, both together do not
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, to := range []string{bob.ID, carol.ID} {
		wg.Add(1)
		go func(i int, to string) {
			defer wg.Done()
			_, errs[i] = l.Transfer(ctx, alice.ID, to, tokens("60"))
		}(i, to)
	}
	wg.Wait()

	succeeded, insufficient := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, models.ErrInsufficientBalance):
			insufficient++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, insufficient)

	balance, err := l.GetBalance(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "40.00", balance)
	assertReconciled(t, l, alice.ID, bob.ID, carol.ID)
}

func TestOppositeTransfersDoNotDeadlock(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	alice := openAccount(t, l, "alice")
	bob := openAccount(t, l, "bob")
	_, err := l.GrantAirdrop(ctx, alice.ID, 10000)
	require.NoError(t, err)
	_, err = l.GrantAirdrop(ctx, bob.ID, 10000)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = l.Transfer(ctx, alice.ID, bob.ID, tokens("1.5"))
		}()
		go func() {
			defer wg.Done()
			_, _ = l.Transfer(ctx, bob.ID, alice.ID, tokens("1.5"))
		}()
	}
	wg.Wait()

	a, err := l.Account(ctx, alice.ID)
	require.NoError(t, err)
	b, err := l.Account(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20000), a.Balance+b.Balance)
	assertReconciled(t, l, alice.ID, bob.ID)
}

func TestRandomTransfersConserveTotal(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	ids := make([]string, 5)
	for i := range ids {
		ids[i] = openAccount(t, l, string(rune('a'+i))).ID
		_, err := l.GrantAirdrop(ctx, ids[i], 1000)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				from := ids[(w+i)%len(ids)]
				to := ids[(w+2*i+1)%len(ids)]
				_, _ = l.Transfer(ctx, from, to, tokens("3.33"))
			}
		}(w)
	}
	wg.Wait()

	var total int64
	for _, id := range ids {
		a, err := l.Account(ctx, id)
		require.NoError(t, err)
		total += a.Balance
	}
	assert.Equal(t, int64(5000), total)
	assertReconciled(t, l, ids...)
}

func TestPublishFailureDoesNotUndoCommit(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	l, _ := newTestLedger(t, WithPublisher(pub, ""))
	alice := openAccount(t, l, "alice")

	_, err := l.GrantAirdrop(context.Background(), alice.ID, 10000)
	require.NoError(t, err)

	balance, err := l.GetBalance(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "100.00", balance)
}

func TestGetHistoryUnknownAccount(t *testing.T) {
	l, _ := newTestLedger(t)
	_, err := l.GetHistory(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = l.GetBalance(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func lockCount(l *Ledger) int {
	l.mapMu.Lock()
	defer l.mapMu.Unlock()
	return len(l.muMap)
}

func TestUnknownAccountsDoNotGrowLockMap(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	alice := openAccount(t, l, "alice")
	bob := openAccount(t, l, "bob")
	_, err := l.GrantAirdrop(ctx, alice.ID, 10000)
	require.NoError(t, err)
	_, err = l.Transfer(ctx, alice.ID, bob.ID, tokens("1"))
	require.NoError(t, err)
	require.Equal(t, 2, lockCount(l))

	for i := 0; i < 1000; i++ {
		_, err := l.Transfer(ctx, alice.ID, fmt.Sprintf("bogus-%d", i), tokens("1"))
		require.ErrorIs(t, err, models.ErrRecipientNotFound)
	}
	_, err = l.Transfer(ctx, "ghost", bob.ID, tokens("1"))
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = l.GrantAirdrop(ctx, "ghost", 10000)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, _, err = l.Reconcile(ctx, "ghost")
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.Equal(t, 2, lockCount(l))
}
