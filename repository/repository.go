package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"go-bank-transfers/common"
	"go-bank-transfers/model"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// UnitOfWork runs fn inside a single storage transaction. Repository calls
// made with the context passed to fn join that transaction; fn returning an
// error discards every write made through it.
type UnitOfWork interface {
	WithinTx(ctx context.Context, mode model.FetchMode, fn func(ctx context.Context) error) error
}

// IAccountRepository defines the contract for account storage.
type IAccountRepository interface {
	CreateAccount(ctx context.Context, account *model.Account) error
	GetAccountByID(ctx context.Context, id string) (*model.Account, error)
	GetAllAccounts(ctx context.Context) ([]*model.Account, error)
	// GetPairForUpdate loads both accounts using the locking discipline of mode.
	// Passing the same id twice returns two copies of that account.
	GetPairForUpdate(ctx context.Context, sourceID, targetID string, mode model.FetchMode) (*model.Account, *model.Account, error)
	// SaveAll persists balances and bumps versions. Under FetchOptimistic the
	// write fails with common.ErrConcurrencyConflict if a version moved.
	SaveAll(ctx context.Context, mode model.FetchMode, accounts ...*model.Account) error
	DepositToAccount(ctx context.Context, id string, amount decimal.Decimal) (*model.Account, error)
}

// ITransactionRepository defines the contract for transaction storage.
type ITransactionRepository interface {
	GetByID(ctx context.Context, id string) (*model.Transaction, error)
	// InsertOrGet stores marker unless a record with the same id exists and
	// returns whichever record is stored afterwards.
	InsertOrGet(ctx context.Context, marker *model.Transaction) (*model.Transaction, error)
	// Finalize writes a terminal record. It fails with
	// common.ErrTransactionFinalized if the stored record is already terminal.
	Finalize(ctx context.Context, txn *model.Transaction) error
	GetTransactionsByAccountID(ctx context.Context, accountID string) ([]*model.Transaction, error)
}

type txKey struct{}

// dbExecutor is satisfied by both *sql.DB and *sql.Tx.
type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func withTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func txFrom(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok
}

func executorFor(ctx context.Context, db *sql.DB) dbExecutor {
	if tx, ok := txFrom(ctx); ok {
		return tx
	}
	return db
}

// Postgres error codes the engine reacts to.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// storeError maps driver failures onto the domain taxonomy. Errors that are
// already domain errors, or context errors, pass through unchanged.
func storeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pgSerializationFailure, pgDeadlockDetected:
			return fmt.Errorf("%w: %s", common.ErrConcurrencyConflict, pqErr.Message)
		case pgLockNotAvailable:
			return fmt.Errorf("%w: %s", common.ErrLockTimeout, pqErr.Message)
		}
	}

	for _, known := range []error{
		common.ErrAccountNotFound, common.ErrTransactionNotFound, common.ErrTransactionFinalized,
		common.ErrConcurrencyConflict, common.ErrLockTimeout, common.ErrUnexpectedStore,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", common.ErrUnexpectedStore, err)
}
