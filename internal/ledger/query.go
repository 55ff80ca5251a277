package ledger

import (
	"context"

	"github.com/sheikh-saqib/token-ledger/internal/models"
)

// Read-only lookups. They never take account locks: every store commits a
// posting atomically, so a read sees either all of it or none of it.

// GetBalance returns the balance in tokens with two decimals, e.g. "70.00".
func (l *Ledger) GetBalance(ctx context.Context, accountId string) (string, error) {
	account, err := l.Account(ctx, accountId)
	if err != nil {
		return "", err
	}
	return models.FormatTokens(account.Balance), nil
}

func (l *Ledger) Account(ctx context.Context, accountId string) (models.Account, error) {
	account, err := l.store.GetAccount(ctx, accountId)
	if err != nil {
		return models.Account{}, storeError(err)
	}
	return account, nil
}

func (l *Ledger) AccountByUserName(ctx context.Context, userName string) (models.Account, error) {
	account, err := l.store.GetAccountByUserName(ctx, userName)
	if err != nil {
		return models.Account{}, storeError(err)
	}
	return account, nil
}

func (l *Ledger) Accounts(ctx context.Context) ([]models.Account, error) {
	accounts, err := l.store.ListAccounts(ctx)
	if err != nil {
		return nil, storeError(err)
	}
	return accounts, nil
}

// GetHistory lists every transaction naming the account, oldest first.
func (l *Ledger) GetHistory(ctx context.Context, accountId string) ([]models.Transaction, error) {
	history, err := l.store.ListByAccount(ctx, accountId)
	if err != nil {
		return nil, storeError(err)
	}
	return history, nil
}

// Reconcile returns the stored balance next to the one derived from the log.
// The two must always be equal.
func (l *Ledger) Reconcile(ctx context.Context, accountId string) (stored, derived int64, err error) {
	if _, err := l.Account(ctx, accountId); err != nil {
		return 0, 0, err
	}

	unlock := l.lockAccounts(accountId)
	defer unlock()

	account, err := l.Account(ctx, accountId)
	if err != nil {
		return 0, 0, err
	}
	history, err := l.GetHistory(ctx, accountId)
	if err != nil {
		return 0, 0, err
	}
	for _, tx := range history {
		derived += tx.SignedAmount(accountId)
	}
	return account.Balance, derived, nil
}
