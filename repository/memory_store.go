package repository

import (
	"context"
	"fmt"
	"go-bank-transfers/common"
	"go-bank-transfers/logger"
	"go-bank-transfers/model"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// MemoryStore keeps accounts and transactions in process memory. It
// implements UnitOfWork, IAccountRepository and ITransactionRepository with
// the same guarantees the postgres implementation gets from the database:
// per-row exclusive locks, version-checked writes and all-or-nothing commits.
type MemoryStore struct {
	mu           sync.Mutex
	accounts     map[string]*model.Account
	transactions map[string]*model.Transaction

	locksMu  sync.Mutex
	rowLocks map[string]chan struct{}

	lockTimeout time.Duration
	now         func() time.Time
}

func NewMemoryStore(lockTimeout time.Duration) *MemoryStore {
	return &MemoryStore{
		accounts:     make(map[string]*model.Account),
		transactions: make(map[string]*model.Transaction),
		rowLocks:     make(map[string]chan struct{}),
		lockTimeout:  lockTimeout,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

type memTxKey struct{}

// memTx buffers the writes of one unit of work until commit.
type memTx struct {
	mode     model.FetchMode
	held     map[string]chan struct{}
	readSet  map[string]int64
	accounts map[string]*model.Account
	txns     map[string]*model.Transaction
}

func memTxFrom(ctx context.Context) (*memTx, bool) {
	tx, ok := ctx.Value(memTxKey{}).(*memTx)
	return tx, ok
}

func (s *MemoryStore) rowLock(id string) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	ch, ok := s.rowLocks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		s.rowLocks[id] = ch
	}
	return ch
}

// lockRows takes the row locks of ids in sorted order, skipping those already
// in held. It gives up after the store's lock timeout.
func (s *MemoryStore) lockRows(ctx context.Context, held map[string]chan struct{}, ids ...string) error {
	sorted := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			sorted = append(sorted, id)
		}
	}
	sort.Strings(sorted)

	var timeout <-chan time.Time
	if s.lockTimeout > 0 {
		timer := time.NewTimer(s.lockTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	for _, id := range sorted {
		if _, ok := held[id]; ok {
			continue
		}
		ch := s.rowLock(id)
		select {
		case ch <- struct{}{}:
			held[id] = ch
		case <-timeout:
			logger.Log.WithField("account_id", id).Warn("Timed out waiting for row lock")
			return fmt.Errorf("%w: account %s", common.ErrLockTimeout, id)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func unlockRows(held map[string]chan struct{}) {
	for id, ch := range held {
		<-ch
		delete(held, id)
	}
}

// WithinTx runs fn against a private write buffer and applies it atomically
// if fn succeeds and no account read inside fn has changed since.
func (s *MemoryStore) WithinTx(ctx context.Context, mode model.FetchMode, fn func(ctx context.Context) error) error {
	if _, ok := memTxFrom(ctx); ok {
		return fn(ctx)
	}

	tx := &memTx{
		mode:     mode,
		held:     make(map[string]chan struct{}),
		readSet:  make(map[string]int64),
		accounts: make(map[string]*model.Account),
		txns:     make(map[string]*model.Transaction),
	}
	defer unlockRows(tx.held)

	if err := fn(context.WithValue(ctx, memTxKey{}, tx)); err != nil {
		return err
	}
	return s.commit(ctx, tx)
}

func (s *MemoryStore) commit(ctx context.Context, tx *memTx) error {
	written := make([]string, 0, len(tx.accounts))
	for id := range tx.accounts {
		written = append(written, id)
	}
	// Writers always hold the row lock, as an UPDATE would in postgres.
	if err := s.lockRows(ctx, tx.held, written...); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, version := range tx.readSet {
		current, ok := s.accounts[id]
		if !ok || current.Version != version {
			logger.Log.WithFields(logrus.Fields{
				"account_id": id,
				"mode":       tx.mode,
			}).Warn("Account changed since it was read")
			return fmt.Errorf("%w: account %s version %d", common.ErrConcurrencyConflict, id, version)
		}
	}
	for id := range tx.txns {
		if current, ok := s.transactions[id]; ok && current.Status.IsTerminal() {
			return fmt.Errorf("%w: %s", common.ErrTransactionFinalized, id)
		}
	}

	for id, acc := range tx.accounts {
		s.accounts[id] = acc.Clone()
	}
	for id, txn := range tx.txns {
		s.transactions[id] = txn.Clone()
	}
	return nil
}

func (s *MemoryStore) CreateAccount(ctx context.Context, account *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[account.ID]; exists {
		return fmt.Errorf("%w: account %s already exists", common.ErrUnexpectedStore, account.ID)
	}
	account.Version = 0
	account.CreatedAt = s.now()
	s.accounts[account.ID] = account.Clone()
	return nil
}

func (s *MemoryStore) GetAccountByID(ctx context.Context, id string) (*model.Account, error) {
	if tx, ok := memTxFrom(ctx); ok {
		if staged, ok := tx.accounts[id]; ok {
			return staged.Clone(), nil
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrAccountNotFound, id)
	}
	return acc.Clone(), nil
}

func (s *MemoryStore) GetAllAccounts(ctx context.Context) ([]*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := make([]*model.Account, 0, len(s.accounts))
	for _, acc := range s.accounts {
		accounts = append(accounts, acc.Clone())
	}
	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].CreatedAt.Equal(accounts[j].CreatedAt) {
			return accounts[i].ID < accounts[j].ID
		}
		return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
	})
	return accounts, nil
}

func (s *MemoryStore) GetPairForUpdate(ctx context.Context, sourceID, targetID string, mode model.FetchMode) (*model.Account, *model.Account, error) {
	tx, inTx := memTxFrom(ctx)
	if mode == model.FetchPessimistic {
		if !inTx {
			return nil, nil, fmt.Errorf("%w: locking read outside of a transaction", common.ErrUnexpectedStore)
		}
		if err := s.lockRows(ctx, tx.held, sourceID, targetID); err != nil {
			return nil, nil, err
		}
	}

	source, err := s.GetAccountByID(ctx, sourceID)
	if err != nil {
		return nil, nil, err
	}
	target, err := s.GetAccountByID(ctx, targetID)
	if err != nil {
		return nil, nil, err
	}

	if inTx {
		for _, acc := range []*model.Account{source, target} {
			if _, seen := tx.readSet[acc.ID]; !seen {
				tx.readSet[acc.ID] = acc.Version
			}
		}
	}
	return source, target, nil
}

func (s *MemoryStore) SaveAll(ctx context.Context, mode model.FetchMode, accounts ...*model.Account) error {
	tx, ok := memTxFrom(ctx)
	if !ok {
		return s.WithinTx(ctx, mode, func(ctx context.Context) error {
			return s.SaveAll(ctx, mode, accounts...)
		})
	}

	for _, acc := range accounts {
		if _, seen := tx.readSet[acc.ID]; !seen {
			tx.readSet[acc.ID] = acc.Version
		}
		acc.Version++
		tx.accounts[acc.ID] = acc.Clone()
	}
	return nil
}

func (s *MemoryStore) DepositToAccount(ctx context.Context, id string, amount decimal.Decimal) (*model.Account, error) {
	held := make(map[string]chan struct{}, 1)
	defer unlockRows(held)
	if err := s.lockRows(ctx, held, id); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrAccountNotFound, id)
	}
	updated := acc.Clone()
	updated.Balance = updated.Balance.Add(amount)
	updated.Version++
	s.accounts[id] = updated
	return updated.Clone(), nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (*model.Transaction, error) {
	if tx, ok := memTxFrom(ctx); ok {
		if staged, ok := tx.txns[id]; ok {
			return staged.Clone(), nil
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.transactions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrTransactionNotFound, id)
	}
	return txn.Clone(), nil
}

func (s *MemoryStore) InsertOrGet(ctx context.Context, marker *model.Transaction) (*model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.transactions[marker.ID]; ok {
		return existing.Clone(), nil
	}

	stored := marker.Clone()
	stored.Status = model.StatusInProgress
	stored.CreatedAt = s.now()
	stored.UpdatedAt = stored.CreatedAt
	s.transactions[stored.ID] = stored
	return stored.Clone(), nil
}

func (s *MemoryStore) Finalize(ctx context.Context, txn *model.Transaction) error {
	if !txn.Status.IsTerminal() {
		return fmt.Errorf("%w: cannot finalize %s with status %s", common.ErrUnexpectedStore, txn.ID, txn.Status)
	}

	s.mu.Lock()
	now := s.now()
	createdAt := now
	if existing, ok := s.transactions[txn.ID]; ok {
		if existing.Status.IsTerminal() {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s", common.ErrTransactionFinalized, txn.ID)
		}
		createdAt = existing.CreatedAt
	}
	txn.CreatedAt = createdAt
	txn.UpdatedAt = now

	tx, inTx := memTxFrom(ctx)
	if !inTx {
		s.transactions[txn.ID] = txn.Clone()
	}
	s.mu.Unlock()

	if inTx {
		tx.txns[txn.ID] = txn.Clone()
	}
	return nil
}

func (s *MemoryStore) GetTransactionsByAccountID(ctx context.Context, accountID string) ([]*model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var transactions []*model.Transaction
	for _, txn := range s.transactions {
		if txn.SourceAccountID == accountID || txn.TargetAccountID == accountID {
			transactions = append(transactions, txn.Clone())
		}
	}
	sort.Slice(transactions, func(i, j int) bool {
		return transactions[i].CreatedAt.After(transactions[j].CreatedAt)
	})
	return transactions, nil
}

var (
	_ UnitOfWork             = (*MemoryStore)(nil)
	_ IAccountRepository     = (*MemoryStore)(nil)
	_ ITransactionRepository = (*MemoryStore)(nil)
)
