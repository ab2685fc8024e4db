package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"go-bank-transfers/common"
	"go-bank-transfers/logger"
	"go-bank-transfers/model"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const accountColumns = `id, balance, currency, version, created_at`

type AccountRepository struct {
	DB *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{DB: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row rowScanner) (*model.Account, error) {
	var acc model.Account
	if err := row.Scan(&acc.ID, &acc.Balance, &acc.Currency, &acc.Version, &acc.CreatedAt); err != nil {
		return nil, err
	}
	return &acc, nil
}

// CreateAccount adds a new account to the database.
func (r *AccountRepository) CreateAccount(ctx context.Context, account *model.Account) error {
	log := logger.Log.WithFields(logrus.Fields{
		"account_id": account.ID,
		"currency":   account.Currency,
	})
	log.Info("Executing query to create a new account")

	query := `INSERT INTO accounts (id, balance, currency) VALUES ($1, $2, $3) RETURNING version, created_at`
	err := executorFor(ctx, r.DB).QueryRowContext(ctx, query, account.ID, account.Balance, account.Currency).
		Scan(&account.Version, &account.CreatedAt)
	if err != nil {
		log.WithError(err).Error("Failed to execute create account query")
		return storeError(err)
	}
	return nil
}

// GetAccountByID reads a single account without locking it.
func (r *AccountRepository) GetAccountByID(ctx context.Context, id string) (*model.Account, error) {
	log := logger.Log.WithField("account_id", id)
	log.Info("Executing query to get account by ID")

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	acc, err := scanAccount(executorFor(ctx, r.DB).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Info("Account not found")
			return nil, fmt.Errorf("%w: %s", common.ErrAccountNotFound, id)
		}
		log.WithError(err).Error("Failed to execute get account query")
		return nil, storeError(err)
	}
	return acc, nil
}

// GetAllAccounts retrieves all accounts from the database.
func (r *AccountRepository) GetAllAccounts(ctx context.Context) ([]*model.Account, error) {
	log := logger.Log
	log.Info("Executing query to get all accounts")

	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY created_at`
	rows, err := executorFor(ctx, r.DB).QueryContext(ctx, query)
	if err != nil {
		log.WithError(err).Error("Failed to execute query for all accounts")
		return nil, storeError(err)
	}
	defer rows.Close()

	var accounts []*model.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			log.WithError(err).Error("Failed to scan account row")
			return nil, storeError(err)
		}
		accounts = append(accounts, acc)
	}
	return accounts, storeError(rows.Err())
}

// GetPairForUpdate fetches both accounts of a transfer. Rows are read in id
// order so that two pessimistic transfers over the same pair always lock in
// the same order.
func (r *AccountRepository) GetPairForUpdate(ctx context.Context, sourceID, targetID string, mode model.FetchMode) (*model.Account, *model.Account, error) {
	log := logger.Log.WithFields(logrus.Fields{
		"source_account_id": sourceID,
		"target_account_id": targetID,
		"mode":              mode,
	})
	log.Info("Executing query to get account pair for update")

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = ANY($1) ORDER BY id`
	if mode == model.FetchPessimistic {
		query += ` FOR UPDATE`
	}

	rows, err := executorFor(ctx, r.DB).QueryContext(ctx, query, pq.Array([]string{sourceID, targetID}))
	if err != nil {
		log.WithError(err).Error("Failed to execute get account pair query")
		return nil, nil, storeError(err)
	}
	defer rows.Close()

	found := make(map[string]*model.Account, 2)
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			log.WithError(err).Error("Failed to scan account row")
			return nil, nil, storeError(err)
		}
		found[acc.ID] = acc
	}
	if err := rows.Err(); err != nil {
		log.WithError(err).Error("Failed to iterate account rows")
		return nil, nil, storeError(err)
	}

	source, ok := found[sourceID]
	if !ok {
		log.Info("Source account not found")
		return nil, nil, fmt.Errorf("%w: %s", common.ErrAccountNotFound, sourceID)
	}
	target, ok := found[targetID]
	if !ok {
		log.Info("Target account not found")
		return nil, nil, fmt.Errorf("%w: %s", common.ErrAccountNotFound, targetID)
	}
	if sourceID == targetID {
		target = source.Clone()
	}
	return source, target, nil
}

// SaveAll writes balances and bumps versions. Under the optimistic mode the
// update only matches the version that was read.
func (r *AccountRepository) SaveAll(ctx context.Context, mode model.FetchMode, accounts ...*model.Account) error {
	exec := executorFor(ctx, r.DB)
	for _, acc := range accounts {
		log := logger.Log.WithFields(logrus.Fields{
			"account_id":  acc.ID,
			"new_balance": acc.Balance.String(),
			"version":     acc.Version,
			"mode":        mode,
		})
		log.Info("Executing query to update account balance")

		var (
			res sql.Result
			err error
		)
		if mode == model.FetchOptimistic {
			res, err = exec.ExecContext(ctx,
				`UPDATE accounts SET balance = $1, version = version + 1 WHERE id = $2 AND version = $3`,
				acc.Balance, acc.ID, acc.Version)
		} else {
			res, err = exec.ExecContext(ctx,
				`UPDATE accounts SET balance = $1, version = version + 1 WHERE id = $2`,
				acc.Balance, acc.ID)
		}
		if err != nil {
			log.WithError(err).Error("Failed to execute update account balance query")
			return storeError(err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return storeError(err)
		}
		if affected == 0 {
			if mode == model.FetchOptimistic {
				log.Warn("Account version changed since it was read")
				return fmt.Errorf("%w: account %s version %d", common.ErrConcurrencyConflict, acc.ID, acc.Version)
			}
			return fmt.Errorf("%w: %s", common.ErrAccountNotFound, acc.ID)
		}
		acc.Version++
	}
	return nil
}

// DepositToAccount credits an account from outside the transfer engine.
func (r *AccountRepository) DepositToAccount(ctx context.Context, id string, amount decimal.Decimal) (*model.Account, error) {
	log := logger.Log.WithFields(logrus.Fields{
		"account_id": id,
		"amount":     amount.String(),
	})
	log.Info("Executing query to deposit to account")

	query := `UPDATE accounts SET balance = balance + $1, version = version + 1 WHERE id = $2 RETURNING ` + accountColumns
	acc, err := scanAccount(executorFor(ctx, r.DB).QueryRowContext(ctx, query, amount, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", common.ErrAccountNotFound, id)
		}
		log.WithError(err).Error("Failed to execute deposit query")
		return nil, storeError(err)
	}
	return acc, nil
}

var _ IAccountRepository = (*AccountRepository)(nil)
