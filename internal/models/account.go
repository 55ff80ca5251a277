package models

import "time"

// Account holds a user's balance in zennies and the one-way airdrop flag
type Account struct {
	ID             string    `json:"id"`
	UserName       string    `json:"user_name"`
	PasswordHash   string    `json:"password_hash,omitempty"`
	Balance        int64     `json:"balance"`
	AirdropGranted bool      `json:"airdrop_granted"`
	CreatedAt      time.Time `json:"created_at"`
}

// BalanceDelta is a signed change to one account's balance
type BalanceDelta struct {
	AccountID string
	Amount    int64
}

// Posting is the unit of work a store applies all-or-nothing:
// the balance deltas, the optional airdrop flag flip and the transaction record.
type Posting struct {
	Transaction    Transaction
	Deltas         []BalanceDelta
	ConsumeAirdrop bool // flips Transaction.Recipient's AirdropGranted
}

// NewTransferPosting builds the posting for moving amount zennies from one account to another
func NewTransferPosting(tx Transaction) Posting {
	return Posting{
		Transaction: tx,
		Deltas: []BalanceDelta{
			{AccountID: tx.Sender, Amount: -tx.Amount},
			{AccountID: tx.Recipient, Amount: tx.Amount},
		},
	}
}

// NewAirdropPosting builds the posting for a one-time system credit
func NewAirdropPosting(tx Transaction) Posting {
	return Posting{
		Transaction:    tx,
		Deltas:         []BalanceDelta{{AccountID: tx.Recipient, Amount: tx.Amount}},
		ConsumeAirdrop: true,
	}
}

// Net folds the deltas per account, keeping first-seen order
func (p Posting) Net() ([]string, map[string]int64) {
	order := make([]string, 0, len(p.Deltas))
	net := make(map[string]int64, len(p.Deltas))
	for _, d := range p.Deltas {
		if _, seen := net[d.AccountID]; !seen {
			order = append(order, d.AccountID)
		}
		net[d.AccountID] += d.Amount
	}
	return order, net
}
