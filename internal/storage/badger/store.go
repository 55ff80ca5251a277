// Package badger persists accounts and the transaction log in an embedded BadgerDB.
//
// Key layout:
//
//	acct:<account id>                 -> JSON account
//	user:<user name>                  -> account id
//	tx:<seq>                          -> JSON transaction
//	idx:<account id>:<seq>:<tx id>    -> empty (per-account history index)
//	order:<seq>                       -> account id (registration order)
//
// Sequence numbers are zero-padded so lexical order equals insertion order.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	interfaces "github.com/sheikh-saqib/token-ledger/internal/interfaces"
	"github.com/sheikh-saqib/token-ledger/internal/models"
)

const sequenceBandwidth = 100

type Store struct {
	db     *badger.DB
	seq    *badger.Sequence
	logger zerolog.Logger
	now    func() time.Time

	// badger transactions are optimistic; serializing writers keeps
	// conflicting commits from failing with ErrConflict.
	writeMu sync.Mutex
}

// Open opens (or creates) a store in dir. An empty dir keeps everything in memory.
func Open(dir string, logger zerolog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, models.Unavailable("open badger", err)
	}
	return New(db, logger)
}

// New wraps an already opened database.
func New(db *badger.DB, logger zerolog.Logger) (*Store, error) {
	seq, err := db.GetSequence([]byte("seq:ledger"), sequenceBandwidth)
	if err != nil {
		return nil, models.Unavailable("badger sequence", err)
	}
	return &Store{
		db:     db,
		seq:    seq,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Close releases the sequence lease and closes the database.
func (s *Store) Close() error {
	if err := s.seq.Release(); err != nil {
		s.logger.Error().Err(err).Msg("Failed to release badger sequence")
	}
	return s.db.Close()
}

func accountKey(id string) []byte  { return []byte("acct:" + id) }
func userKey(name string) []byte   { return []byte("user:" + name) }
func txKey(seq uint64) []byte      { return []byte(fmt.Sprintf("tx:%020d", seq)) }
func orderKey(seq uint64) []byte   { return []byte(fmt.Sprintf("order:%020d", seq)) }
func indexPrefix(id string) []byte { return []byte("idx:" + id + ":") }

func indexKey(id string, seq uint64, txID string) []byte {
	return []byte(fmt.Sprintf("idx:%s:%020d:%s", id, seq, txID))
}

func (s *Store) nextSeq() (uint64, error) {
	n, err := s.seq.Next()
	if err != nil {
		return 0, models.Unavailable("badger sequence", err)
	}
	return n, nil
}

func getJSON(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

func setJSON(txn *badger.Txn, key []byte, in any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

// classify maps badger errors onto the ledger error kinds.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return models.ErrNotFound
	case models.IsDomainError(err):
		return err
	default:
		return models.Unavailable(op, err)
	}
}

func loadAccount(txn *badger.Txn, id string) (models.Account, error) {
	var account models.Account
	if err := getJSON(txn, accountKey(id), &account); err != nil {
		return models.Account{}, err
	}
	return account, nil
}

func (s *Store) CreateAccount(ctx context.Context, account models.Account) error {
	if account.CreatedAt.IsZero() {
		account.CreatedAt = s.now()
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	seq, err := s.nextSeq()
	if err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, key := range [][]byte{accountKey(account.ID), userKey(account.UserName)} {
			_, err := txn.Get(key)
			if err == nil {
				return models.ErrDuplicateIdentity
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		if err := setJSON(txn, accountKey(account.ID), account); err != nil {
			return err
		}
		if err := txn.Set(userKey(account.UserName), []byte(account.ID)); err != nil {
			return err
		}
		return txn.Set(orderKey(seq), []byte(account.ID))
	})
	if err != nil {
		return classify("create account", err)
	}

	s.logger.Info().Str("account_id", account.ID).Msg("Account saved in badger")
	return nil
}

func (s *Store) GetAccount(ctx context.Context, accountId string) (models.Account, error) {
	var account models.Account
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		account, err = loadAccount(txn, accountId)
		return err
	})
	if err != nil {
		return models.Account{}, classify("get account", err)
	}
	return account, nil
}

func (s *Store) GetAccountByUserName(ctx context.Context, userName string) (models.Account, error) {
	var account models.Account
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(userName))
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		account, err = loadAccount(txn, string(id))
		return err
	})
	if err != nil {
		return models.Account{}, classify("get account by user name", err)
	}
	return account, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]models.Account, error) {
	var accounts []models.Account
	err := s.db.View(func(txn *badger.Txn) error {
		iter := txn.NewIterator(badger.DefaultIteratorOptions)
		defer iter.Close()

		prefix := []byte("order:")
		for iter.Seek(prefix); iter.ValidForPrefix(prefix); iter.Next() {
			id, err := iter.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			account, err := loadAccount(txn, string(id))
			if err != nil {
				return err
			}
			accounts = append(accounts, account)
		}
		return nil
	})
	if err != nil {
		return nil, classify("list accounts", err)
	}
	return accounts, nil
}

func (s *Store) ApplyBalanceDelta(ctx context.Context, accountId string, delta int64) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var balance int64
	err := s.db.Update(func(txn *badger.Txn) error {
		account, err := loadAccount(txn, accountId)
		if err != nil {
			return err
		}
		if account.Balance+delta < 0 {
			return models.ErrNegativeBalance
		}
		account.Balance += delta
		balance = account.Balance
		return setJSON(txn, accountKey(accountId), account)
	})
	if err != nil {
		return 0, classify("apply balance delta", err)
	}
	return balance, nil
}

func (s *Store) AppendTransaction(ctx context.Context, tx models.Transaction) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", err
	}
	tx = tx.Stamp(uuid.NewString, s.now())

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	seq, err := s.nextSeq()
	if err != nil {
		return "", err
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return appendTx(txn, seq, tx)
	}); err != nil {
		return "", classify("append transaction", err)
	}
	return tx.ID, nil
}

func appendTx(txn *badger.Txn, seq uint64, tx models.Transaction) error {
	if err := setJSON(txn, txKey(seq), tx); err != nil {
		return err
	}
	if err := txn.Set(indexKey(tx.Recipient, seq, tx.ID), []byte{}); err != nil {
		return err
	}
	if tx.Sender != "" {
		return txn.Set(indexKey(tx.Sender, seq, tx.ID), []byte{})
	}
	return nil
}

// ListByAccount walks the per-account index; each entry points back at tx:<seq>.
func (s *Store) ListByAccount(ctx context.Context, accountId string) ([]models.Transaction, error) {
	result := make([]models.Transaction, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get(accountKey(accountId)); err != nil {
			return err
		}

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		iter := txn.NewIterator(opts)
		defer iter.Close()

		prefix := indexPrefix(accountId)
		for iter.Seek(prefix); iter.ValidForPrefix(prefix); iter.Next() {
			rest := string(iter.Item().Key()[len(prefix):])
			seqPart, _, _ := strings.Cut(rest, ":")
			seq, err := strconv.ParseUint(seqPart, 10, 64)
			if err != nil {
				return err
			}
			var tx models.Transaction
			if err := getJSON(txn, txKey(seq), &tx); err != nil {
				return err
			}
			result = append(result, tx)
		}
		return nil
	})
	if err != nil {
		return nil, classify("list transactions", err)
	}
	return result, nil
}

// Commit applies the posting inside a single badger transaction.
func (s *Store) Commit(ctx context.Context, posting models.Posting) (map[string]int64, error) {
	tx := posting.Transaction
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	tx = tx.Stamp(uuid.NewString, s.now())

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	seq, err := s.nextSeq()
	if err != nil {
		return nil, err
	}

	order, net := posting.Net()
	balances := make(map[string]int64, len(order))
	err = s.db.Update(func(txn *badger.Txn) error {
		accounts := make(map[string]models.Account, len(order)+1)
		for _, id := range order {
			account, err := loadAccount(txn, id)
			if err != nil {
				return err
			}
			if account.Balance+net[id] < 0 {
				return models.ErrNegativeBalance
			}
			account.Balance += net[id]
			accounts[id] = account
			balances[id] = account.Balance
		}

		if posting.ConsumeAirdrop {
			account, ok := accounts[tx.Recipient]
			if !ok {
				loaded, err := loadAccount(txn, tx.Recipient)
				if err != nil {
					return err
				}
				account = loaded
			}
			if account.AirdropGranted {
				return models.ErrAlreadyGranted
			}
			account.AirdropGranted = true
			accounts[tx.Recipient] = account
		}

		for id, account := range accounts {
			if err := setJSON(txn, accountKey(id), account); err != nil {
				return err
			}
		}
		return appendTx(txn, seq, tx)
	})
	if err != nil {
		return nil, classify("commit posting", err)
	}

	s.logger.Debug().Str("tx_id", tx.ID).Str("kind", string(tx.Kind)).Msg("Posting committed to badger")
	return balances, nil
}

var _ interfaces.LedgerStore = (*Store)(nil)
