package interfaces

import (
	"context"

	"github.com/sheikh-saqib/token-ledger/internal/models"
)

// LedgerStore is the durable account store plus the append-only transaction log.
// Every method is safe for concurrent use.
type LedgerStore interface {
	CreateAccount(ctx context.Context, account models.Account) error
	GetAccount(ctx context.Context, accountId string) (models.Account, error)
	GetAccountByUserName(ctx context.Context, userName string) (models.Account, error)
	ListAccounts(ctx context.Context) ([]models.Account, error)

	// ApplyBalanceDelta checks and writes a single balance change atomically.
	ApplyBalanceDelta(ctx context.Context, accountId string, delta int64) (int64, error)
	AppendTransaction(ctx context.Context, tx models.Transaction) (string, error)
	ListByAccount(ctx context.Context, accountId string) ([]models.Transaction, error)

	// Commit applies a posting as one unit of work and returns the
	// post-commit balance of every account it touched.
	Commit(ctx context.Context, posting models.Posting) (map[string]int64, error)
}
