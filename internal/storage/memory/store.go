package memory

import (
	"context" // request-scoped context, unused in memory but part of the store contract
	"sync"    // RWMutex guards every map and slice below
	"time"

	"github.com/google/uuid"
	interfaces "github.com/sheikh-saqib/token-ledger/internal/interfaces"
	"github.com/sheikh-saqib/token-ledger/internal/models"
)

// MemoryLedgerStore is an in-memory implementation of interfaces.LedgerStore.
// Accounts live in a map, the transaction log is an append-only slice.
type MemoryLedgerStore struct {
	mu           sync.RWMutex              // one lock keeps balances and log in step
	accounts     map[string]models.Account // account id -> account
	userNames    map[string]string         // user name -> account id
	order        []string                  // account ids in registration order
	transactions []models.Transaction      // the log, insertion order
	now          func() time.Time
}

// NewMemoryLedgerStore creates and returns a new MemoryLedgerStore instance
func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		accounts:     make(map[string]models.Account),
		userNames:    make(map[string]string),
		transactions: make([]models.Transaction, 0),
		now:          time.Now,
	}
}

func (m *MemoryLedgerStore) CreateAccount(ctx context.Context, account models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.accounts[account.ID]; exists {
		return models.ErrDuplicateIdentity
	}
	if _, exists := m.userNames[account.UserName]; exists {
		return models.ErrDuplicateIdentity
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = m.now()
	}

	m.accounts[account.ID] = account
	m.userNames[account.UserName] = account.ID
	m.order = append(m.order, account.ID)
	return nil
}

func (m *MemoryLedgerStore) GetAccount(ctx context.Context, accountId string) (models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	account, ok := m.accounts[accountId]
	if !ok {
		return models.Account{}, models.ErrNotFound
	}
	return account, nil
}

func (m *MemoryLedgerStore) GetAccountByUserName(ctx context.Context, userName string) (models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.userNames[userName]
	if !ok {
		return models.Account{}, models.ErrNotFound
	}
	return m.accounts[id], nil
}

func (m *MemoryLedgerStore) ListAccounts(ctx context.Context) ([]models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]models.Account, 0, len(m.order))
	for _, id := range m.order {
		result = append(result, m.accounts[id])
	}
	return result, nil
}

// ApplyBalanceDelta adds delta to a single balance, refusing to go below zero.
func (m *MemoryLedgerStore) ApplyBalanceDelta(ctx context.Context, accountId string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[accountId]
	if !ok {
		return 0, models.ErrNotFound
	}
	if account.Balance+delta < 0 {
		return account.Balance, models.ErrNegativeBalance
	}
	account.Balance += delta
	m.accounts[accountId] = account
	return account.Balance, nil
}

// AppendTransaction adds a record to the log without touching balances.
func (m *MemoryLedgerStore) AppendTransaction(ctx context.Context, tx models.Transaction) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx = tx.Stamp(uuid.NewString, m.now())
	m.transactions = append(m.transactions, tx)
	return tx.ID, nil
}

// ListByAccount scans the log for transactions that name the account.
// Each call returns a fresh copy.
func (m *MemoryLedgerStore) ListByAccount(ctx context.Context, accountId string) ([]models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.accounts[accountId]; !ok {
		return nil, models.ErrNotFound
	}

	result := make([]models.Transaction, 0)
	for _, tx := range m.transactions {
		if tx.Involves(accountId) {
			result = append(result, tx)
		}
	}
	return result, nil
}

// Commit validates the whole posting first and only then mutates,
// so a rejected posting leaves no trace.
func (m *MemoryLedgerStore) Commit(ctx context.Context, posting models.Posting) (map[string]int64, error) {
	if err := posting.Transaction.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	order, net := posting.Net()
	balances := make(map[string]int64, len(order))
	for _, id := range order {
		account, ok := m.accounts[id]
		if !ok {
			return nil, models.ErrNotFound
		}
		if account.Balance+net[id] < 0 {
			return nil, models.ErrNegativeBalance
		}
		balances[id] = account.Balance + net[id]
	}

	recipient := posting.Transaction.Recipient
	if posting.ConsumeAirdrop {
		account, ok := m.accounts[recipient]
		if !ok {
			return nil, models.ErrNotFound
		}
		if account.AirdropGranted {
			return nil, models.ErrAlreadyGranted
		}
	}

	// validation passed: apply everything under the same lock
	for _, id := range order {
		account := m.accounts[id]
		account.Balance = balances[id]
		if posting.ConsumeAirdrop && id == recipient {
			account.AirdropGranted = true
		}
		m.accounts[id] = account
	}
	if posting.ConsumeAirdrop {
		if _, touched := balances[recipient]; !touched {
			account := m.accounts[recipient]
			account.AirdropGranted = true
			m.accounts[recipient] = account
		}
	}

	m.transactions = append(m.transactions, posting.Transaction.Stamp(uuid.NewString, m.now()))
	return balances, nil
}

// Compile-time check: ensure MemoryLedgerStore implements LedgerStore interface
var _ interfaces.LedgerStore = (*MemoryLedgerStore)(nil)
