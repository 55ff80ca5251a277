package postgres

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	interfaces "github.com/sheikh-saqib/token-ledger/internal/interfaces" // interface LedgerStore
	"github.com/sheikh-saqib/token-ledger/internal/models"
)

const uniqueViolation = "23505"

type PostgresLedgerStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresLedgerStore(db *sql.DB) *PostgresLedgerStore {
	return &PostgresLedgerStore{
		db:  db,
		now: time.Now,
	}
}

// Open connects with lib/pq and checks the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, models.Unavailable("open postgres", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, models.Unavailable("ping postgres", err)
	}
	return db, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

const accountColumns = `id, user_name, password_hash, balance, airdrop_granted, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (models.Account, error) {
	var account models.Account
	err := row.Scan(
		&account.ID,
		&account.UserName,
		&account.PasswordHash,
		&account.Balance,
		&account.AirdropGranted,
		&account.CreatedAt,
	)
	return account, err
}

func (p *PostgresLedgerStore) CreateAccount(ctx context.Context, account models.Account) error {
	const query = `INSERT INTO accounts (id, user_name, password_hash, balance, airdrop_granted, created_at)
	VALUES ($1, $2, $3, 0, FALSE, $4)`

	if account.CreatedAt.IsZero() {
		account.CreatedAt = p.now()
	}

	_, err := p.db.ExecContext(ctx, query, account.ID, account.UserName, account.PasswordHash, account.CreatedAt)
	if isUniqueViolation(err) {
		return models.ErrDuplicateIdentity
	}
	return models.Unavailable("create account", err)
}

func (p *PostgresLedgerStore) getAccount(ctx context.Context, where string, arg string) (models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE ` + where + ` = $1`

	account, err := scanAccount(p.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return models.Account{}, models.ErrNotFound
	}
	if err != nil {
		return models.Account{}, models.Unavailable("get account", err)
	}
	return account, nil
}

func (p *PostgresLedgerStore) GetAccount(ctx context.Context, accountId string) (models.Account, error) {
	return p.getAccount(ctx, "id", accountId)
}

func (p *PostgresLedgerStore) GetAccountByUserName(ctx context.Context, userName string) (models.Account, error) {
	return p.getAccount(ctx, "user_name", userName)
}

func (p *PostgresLedgerStore) ListAccounts(ctx context.Context) ([]models.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts ORDER BY seq`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, models.Unavailable("list accounts", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, models.Unavailable("list accounts", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, models.Unavailable("list accounts", err)
	}
	return accounts, nil
}

type execer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// applyDelta is a conditional update: the row lock taken by UPDATE makes
// the non-negative check and the write one step.
func applyDelta(ctx context.Context, q execer, accountId string, delta int64) (int64, error) {
	const query = `UPDATE accounts SET balance = balance + $2
	WHERE id = $1 AND balance + $2 >= 0
	RETURNING balance`

	var balance int64
	err := q.QueryRowContext(ctx, query, accountId, delta).Scan(&balance)
	if err == sql.ErrNoRows {
		exists, existsErr := accountExists(ctx, q, accountId)
		if existsErr != nil {
			return 0, existsErr
		}
		if !exists {
			return 0, models.ErrNotFound
		}
		return 0, models.ErrNegativeBalance
	}
	if err != nil {
		return 0, models.Unavailable("apply balance delta", err)
	}
	return balance, nil
}

func accountExists(ctx context.Context, q execer, accountId string) (bool, error) {
	const query = `SELECT 1 FROM accounts WHERE id = $1`

	var one int
	err := q.QueryRowContext(ctx, query, accountId).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, models.Unavailable("account exists", err)
	}
	return true, nil
}

func (p *PostgresLedgerStore) ApplyBalanceDelta(ctx context.Context, accountId string, delta int64) (int64, error) {
	return applyDelta(ctx, p.db, accountId, delta)
}

func saveTransaction(ctx context.Context, q execer, tx models.Transaction) error {
	const query = `INSERT INTO transactions (id, sender, recipient, amount, kind, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)`

	sender := sql.NullString{String: tx.Sender, Valid: tx.Sender != ""}
	_, err := q.ExecContext(ctx, query, tx.ID, sender, tx.Recipient, tx.Amount, string(tx.Kind), tx.CreatedAt)
	return models.Unavailable("append transaction", err)
}

func (p *PostgresLedgerStore) AppendTransaction(ctx context.Context, tx models.Transaction) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", err
	}
	tx = tx.Stamp(uuid.NewString, p.now())
	if err := saveTransaction(ctx, p.db, tx); err != nil {
		return "", err
	}
	return tx.ID, nil
}

// ListByAccount reads the log through the sender/recipient indexes, oldest first.
func (p *PostgresLedgerStore) ListByAccount(ctx context.Context, accountId string) ([]models.Transaction, error) {
	const query = `SELECT id, sender, recipient, amount, kind, created_at FROM transactions
	WHERE sender = $1 OR recipient = $1
	ORDER BY seq`

	exists, err := accountExists(ctx, p.db, accountId)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, models.ErrNotFound
	}

	rows, err := p.db.QueryContext(ctx, query, accountId)
	if err != nil {
		return nil, models.Unavailable("list transactions", err)
	}
	defer rows.Close()

	transactions := make([]models.Transaction, 0)
	for rows.Next() {
		var (
			tx     models.Transaction
			sender sql.NullString
			kind   string
		)
		if err := rows.Scan(&tx.ID, &sender, &tx.Recipient, &tx.Amount, &kind, &tx.CreatedAt); err != nil {
			return nil, models.Unavailable("list transactions", err)
		}
		tx.Sender = sender.String
		tx.Kind = models.TransactionKind(kind)
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, models.Unavailable("list transactions", err)
	}
	return transactions, nil
}

func consumeAirdrop(ctx context.Context, q execer, accountId string) error {
	const query = `UPDATE accounts SET airdrop_granted = TRUE
	WHERE id = $1 AND NOT airdrop_granted`

	result, err := q.ExecContext(ctx, query, accountId)
	if err != nil {
		return models.Unavailable("consume airdrop", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return models.Unavailable("consume airdrop", err)
	}
	if affected == 1 {
		return nil
	}
	exists, err := accountExists(ctx, q, accountId)
	if err != nil {
		return err
	}
	if !exists {
		return models.ErrNotFound
	}
	return models.ErrAlreadyGranted
}

// Commit runs the posting in one database transaction. Rows are updated in
// account id order so two opposite postings cannot deadlock inside postgres.
func (p *PostgresLedgerStore) Commit(ctx context.Context, posting models.Posting) (balances map[string]int64, err error) {
	tx := posting.Transaction
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	tx = tx.Stamp(uuid.NewString, p.now())

	order, net := posting.Net()
	sort.Strings(order)

	dbTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, models.Unavailable("begin", err)
	}

	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	balances = make(map[string]int64, len(order))
	for _, id := range order {
		balance, err := applyDelta(ctx, dbTx, id, net[id])
		if err != nil {
			return nil, err
		}
		balances[id] = balance
	}

	if posting.ConsumeAirdrop {
		if err = consumeAirdrop(ctx, dbTx, tx.Recipient); err != nil {
			return nil, err
		}
	}

	if err = saveTransaction(ctx, dbTx, tx); err != nil {
		return nil, err
	}

	if err = dbTx.Commit(); err != nil {
		return nil, models.Unavailable("commit", err)
	}
	return balances, nil
}

var _ interfaces.LedgerStore = (*PostgresLedgerStore)(nil)
