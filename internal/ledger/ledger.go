package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	interfaces "github.com/sheikh-saqib/token-ledger/internal/interfaces"
	"github.com/sheikh-saqib/token-ledger/internal/metrics"
	"github.com/sheikh-saqib/token-ledger/internal/models"
	"github.com/sheikh-saqib/token-ledger/internal/models/events"
)

// Ledger is the only writer of balances. It serializes mutations per account
// and hands each one to the store as a single posting.
type Ledger struct {
	store     interfaces.LedgerStore   // accounts + transaction log, any backend
	publisher interfaces.EventPublisher // optional, receives TransactionCompleted
	topic     string
	logger    zerolog.Logger
	now       func() time.Time

	muMap map[string]*sync.Mutex // stores the *sync.Mutex for each account in a map
	mapMu sync.Mutex             // protects the muMap itself
}

type Option func(*Ledger)

// WithPublisher publishes a TransactionCompleted event to topic after every commit.
func WithPublisher(publisher interfaces.EventPublisher, topic string) Option {
	return func(l *Ledger) {
		l.publisher = publisher
		if topic != "" {
			l.topic = topic
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// NewLedger creates a Ledger on top of any LedgerStore implementation.
func NewLedger(store interfaces.LedgerStore, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		topic:  events.TransactionCompletedTopic,
		logger: zerolog.Nop(),
		now:    time.Now,
		muMap:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TransferResult carries both balances right after the transfer committed.
type TransferResult struct {
	Transaction      models.Transaction
	SenderBalance    int64
	RecipientBalance int64
}

func (l *Ledger) getAccountLock(accountId string) *sync.Mutex {
	l.mapMu.Lock()
	defer l.mapMu.Unlock()

	if _, exists := l.muMap[accountId]; !exists {
		l.muMap[accountId] = &sync.Mutex{}
	}
	return l.muMap[accountId]
}

// lockAccounts takes every account lock in sorted id order, so two opposite
// transfers between the same pair cannot deadlock. The returned func unlocks.
func (l *Ledger) lockAccounts(accountIds ...string) func() {
	ids := append([]string(nil), accountIds...)
	sort.Strings(ids)

	locked := make([]*sync.Mutex, 0, len(ids))
	for i, id := range ids {
		if i > 0 && ids[i-1] == id {
			continue
		}
		mu := l.getAccountLock(id)
		mu.Lock()
		locked = append(locked, mu)
	}

	return func() {
		for i := len(locked) - 1; i >= 0; i-- {
			locked[i].Unlock()
		}
	}
}

// OpenAccount registers a new account with a zero balance.
func (l *Ledger) OpenAccount(ctx context.Context, userName, passwordHash string) (models.Account, error) {
	account := models.Account{
		ID:           uuid.NewString(),
		UserName:     userName,
		PasswordHash: passwordHash,
		CreatedAt:    l.now().UTC(),
	}

	if err := l.store.CreateAccount(ctx, account); err != nil {
		return models.Account{}, storeError(err)
	}

	l.logger.Info().Str("account_id", account.ID).Str("user_name", userName).Msg("Account opened")
	return account, nil
}

// GrantAirdrop credits amount zennies to the account exactly once in its lifetime.
func (l *Ledger) GrantAirdrop(ctx context.Context, accountId string, amount int64) (tx models.Transaction, err error) {
	start := l.now()
	defer func() { l.record("airdrop", err, start) }()

	if amount <= 0 {
		return models.Transaction{}, models.ErrInvalidAmount
	}

	tx = models.Transaction{
		ID:        uuid.NewString(),
		Recipient: accountId,
		Amount:    amount,
		Kind:      models.KindAirdrop,
		CreatedAt: l.now().UTC(),
	}

	err = func() error {
		// accounts are never deleted; locks exist only for real ones
		if _, err := l.store.GetAccount(ctx, accountId); err != nil {
			return storeError(err)
		}

		unlock := l.lockAccounts(accountId)
		defer unlock()

		account, err := l.store.GetAccount(ctx, accountId)
		if err != nil {
			return storeError(err)
		}
		if account.AirdropGranted {
			return models.ErrAlreadyGranted
		}

		_, err = l.store.Commit(ctx, models.NewAirdropPosting(tx))
		return storeError(err)
	}()
	if err != nil {
		l.logger.Warn().Err(err).Str("account_id", accountId).Msg("Airdrop rejected")
		return models.Transaction{}, err
	}

	l.logger.Info().Str("account_id", accountId).Str("tx_id", tx.ID).Int64("amount", amount).Msg("Airdrop granted")
	l.publish(ctx, tx)
	return tx, nil
}

// Transfer moves a token amount from one account to another.
// Checks run in a fixed order: amount, self-transfer, recipient, balance.
func (l *Ledger) Transfer(ctx context.Context, fromId, toId string, amount decimal.Decimal) (result TransferResult, err error) {
	start := l.now()
	defer func() { l.record("transfer", err, start) }()

	zennies, err := models.ParseTokens(amount)
	if err != nil {
		return TransferResult{}, err
	}
	if fromId == toId {
		return TransferResult{}, models.ErrSelfTransfer
	}

	tx := models.Transaction{
		ID:        uuid.NewString(),
		Sender:    fromId,
		Recipient: toId,
		Amount:    zennies,
		Kind:      models.KindTransfer,
		CreatedAt: l.now().UTC(),
	}

	err = func() error {
		// both ids must name real accounts before a lock is created for them
		if _, err := l.store.GetAccount(ctx, toId); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return models.ErrRecipientNotFound
			}
			return storeError(err)
		}
		if _, err := l.store.GetAccount(ctx, fromId); err != nil {
			return storeError(err)
		}

		unlock := l.lockAccounts(fromId, toId)
		defer unlock()

		sender, err := l.store.GetAccount(ctx, fromId)
		if err != nil {
			return storeError(err)
		}
		// both locks are held, so this is the latest committed balance
		if sender.Balance < zennies {
			return models.ErrInsufficientBalance
		}

		balances, err := l.store.Commit(ctx, models.NewTransferPosting(tx))
		if err != nil {
			if errors.Is(err, models.ErrNegativeBalance) {
				return models.ErrInsufficientBalance
			}
			return storeError(err)
		}
		result = TransferResult{
			Transaction:      tx,
			SenderBalance:    balances[fromId],
			RecipientBalance: balances[toId],
		}
		return nil
	}()
	if err != nil {
		l.logger.Warn().Err(err).Str("from", fromId).Str("to", toId).Msg("Transfer rejected")
		return TransferResult{}, err
	}

	l.logger.Info().
		Str("tx_id", tx.ID).
		Str("from", fromId).
		Str("to", toId).
		Int64("amount", zennies).
		Msg("Transfer committed")
	l.publish(ctx, tx)
	return result, nil
}

// publish runs after the locks are released; the ledger is already
// committed, so a broker failure is only logged.
func (l *Ledger) publish(ctx context.Context, tx models.Transaction) {
	metrics.RecordCredit(string(tx.Kind), tx.Amount)
	if l.publisher == nil {
		return
	}
	if err := l.publisher.Publish(ctx, l.topic, events.NewTransactionCompleted(tx)); err != nil {
		l.logger.Error().Err(err).Str("tx_id", tx.ID).Msg("Failed to publish transaction event")
	}
}

func (l *Ledger) record(operation string, err error, start time.Time) {
	metrics.RecordOperation(operation, outcome(err), l.now().Sub(start))
}

// outcome is the metrics label for an operation result.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, models.ErrRecipientNotFound):
		return "recipient_not_found"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrAlreadyGranted):
		return "already_granted"
	case errors.Is(err, models.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, models.ErrSelfTransfer):
		return "self_transfer"
	case errors.Is(err, models.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, models.ErrDuplicateIdentity):
		return "duplicate_identity"
	default:
		return "store_unavailable"
	}
}

// storeError passes typed ledger errors through and turns anything else
// into ErrStoreUnavailable.
func storeError(err error) error {
	if err == nil || models.IsDomainError(err) {
		return err
	}
	return models.Unavailable("store", err)
}
