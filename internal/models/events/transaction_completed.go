package events

import (
	"time"

	"github.com/sheikh-saqib/token-ledger/internal/models"
	"github.com/shopspring/decimal"
)

// TransactionCompletedTopic is the default topic for committed ledger mutations
const TransactionCompletedTopic = "transaction_completed"

type TransactionCompleted struct {
	TransactionID string                 `json:"transaction_id"`
	Kind          models.TransactionKind `json:"kind"`
	FromAccount   string                 `json:"from_account,omitempty"`
	ToAccount     string                 `json:"to_account"`
	AmountZennies int64                  `json:"amount_zennies"`
	Amount        decimal.Decimal        `json:"amount"`
	OccurredAt    time.Time              `json:"occurred_at"`
}

// NewTransactionCompleted describes a committed transaction for downstream consumers
func NewTransactionCompleted(tx models.Transaction) TransactionCompleted {
	return TransactionCompleted{
		TransactionID: tx.ID,
		Kind:          tx.Kind,
		FromAccount:   tx.Sender,
		ToAccount:     tx.Recipient,
		AmountZennies: tx.Amount,
		Amount:        models.ZenniesToTokens(tx.Amount),
		OccurredAt:    tx.CreatedAt,
	}
}

// PartitionKey keeps every event for one recipient on the same partition
func (e TransactionCompleted) PartitionKey() string {
	return e.ToAccount
}
