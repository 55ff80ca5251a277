package models

import "time"

// TransactionKind tells a system credit apart from a user-to-user transfer
type TransactionKind string

const (
	KindTransfer TransactionKind = "transfer"
	KindAirdrop  TransactionKind = "airdrop"
)

// Transaction represents one committed ledger mutation.
// Sender is empty for system-originated credits (airdrop).
type Transaction struct {
	ID        string          `json:"id"`
	Sender    string          `json:"sender,omitempty"`
	Recipient string          `json:"recipient"`
	Amount    int64           `json:"amount"` // zennies, always > 0
	Kind      TransactionKind `json:"kind"`
	CreatedAt time.Time       `json:"created_at"`
}

// Involves reports whether the account is the sender or the recipient
func (t Transaction) Involves(accountID string) bool {
	return t.Recipient == accountID || (t.Sender != "" && t.Sender == accountID)
}

// SignedAmount is the effect of the transaction on the given account's balance
func (t Transaction) SignedAmount(accountID string) int64 {
	var delta int64
	if t.Recipient == accountID {
		delta += t.Amount
	}
	if t.Sender != "" && t.Sender == accountID {
		delta -= t.Amount
	}
	return delta
}

// Stamp fills in the ID and creation time when the caller left them empty
func (t Transaction) Stamp(newID func() string, now time.Time) Transaction {
	if t.ID == "" {
		t.ID = newID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	return t
}

// Validate checks the shape every appended transaction must have
func (t Transaction) Validate() error {
	if t.Amount <= 0 || t.Recipient == "" {
		return ErrInvalidAmount
	}
	switch t.Kind {
	case KindAirdrop:
		if t.Sender != "" {
			return ErrInvalidAmount
		}
	case KindTransfer:
		if t.Sender == "" {
			return ErrInvalidAmount
		}
		if t.Sender == t.Recipient {
			return ErrSelfTransfer
		}
	default:
		return ErrInvalidAmount
	}
	return nil
}
