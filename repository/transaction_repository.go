package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"go-bank-transfers/common"
	"go-bank-transfers/logger"
	"go-bank-transfers/model"

	"github.com/sirupsen/logrus"
)

const transactionColumns = `id, source_account_id, target_account_id, amount, converted_amount, currency, status, message, result_code, created_at, updated_at`

// TransactionRepository implements ITransactionRepository.
type TransactionRepository struct {
	DB *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{DB: db}
}

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var t model.Transaction
	err := row.Scan(&t.ID, &t.SourceAccountID, &t.TargetAccountID, &t.Amount, &t.ConvertedAmount,
		&t.Currency, &t.Status, &t.Message, &t.ResultCode, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetByID returns the record stored under a request id.
func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*model.Transaction, error) {
	log := logger.Log.WithField("transaction_id", id)
	log.Debug("Executing query to get transaction by ID")

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	t, err := scanTransaction(executorFor(ctx, r.DB).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", common.ErrTransactionNotFound, id)
		}
		log.WithError(err).Error("Failed to execute get transaction query")
		return nil, storeError(err)
	}
	return t, nil
}

// InsertOrGet relies on the primary key to pick a single winner when the same
// request id is inserted concurrently.
func (r *TransactionRepository) InsertOrGet(ctx context.Context, marker *model.Transaction) (*model.Transaction, error) {
	log := logger.Log.WithFields(logrus.Fields{
		"transaction_id":    marker.ID,
		"source_account_id": marker.SourceAccountID,
		"target_account_id": marker.TargetAccountID,
		"amount":            marker.Amount.String(),
	})
	log.Info("Executing query to insert in-progress marker")

	query := `
		INSERT INTO transactions (id, source_account_id, target_account_id, amount, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`
	_, err := executorFor(ctx, r.DB).ExecContext(ctx, query,
		marker.ID, marker.SourceAccountID, marker.TargetAccountID, marker.Amount, model.StatusInProgress)
	if err != nil {
		log.WithError(err).Error("Failed to execute insert marker query")
		return nil, storeError(err)
	}
	return r.GetByID(ctx, marker.ID)
}

// Finalize upserts a terminal record. The update only applies while the
// stored record is IN_PROGRESS, so a terminal record is never overwritten.
func (r *TransactionRepository) Finalize(ctx context.Context, txn *model.Transaction) error {
	log := logger.Log.WithFields(logrus.Fields{
		"transaction_id": txn.ID,
		"status":         txn.Status,
		"result_code":    txn.ResultCode,
	})
	log.Info("Executing query to finalize transaction")

	if !txn.Status.IsTerminal() {
		return fmt.Errorf("%w: cannot finalize %s with status %s", common.ErrUnexpectedStore, txn.ID, txn.Status)
	}

	query := `
		INSERT INTO transactions (id, source_account_id, target_account_id, amount, converted_amount, currency, status, message, result_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			source_account_id = EXCLUDED.source_account_id,
			target_account_id = EXCLUDED.target_account_id,
			amount = EXCLUDED.amount,
			converted_amount = EXCLUDED.converted_amount,
			currency = EXCLUDED.currency,
			status = EXCLUDED.status,
			message = EXCLUDED.message,
			result_code = EXCLUDED.result_code,
			updated_at = NOW()
		WHERE transactions.status = 'IN_PROGRESS'
		RETURNING created_at, updated_at`
	err := executorFor(ctx, r.DB).QueryRowContext(ctx, query,
		txn.ID, txn.SourceAccountID, txn.TargetAccountID, txn.Amount, txn.ConvertedAmount,
		txn.Currency, txn.Status, txn.Message, txn.ResultCode,
	).Scan(&txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Warn("Transaction was already finalized")
			return fmt.Errorf("%w: %s", common.ErrTransactionFinalized, txn.ID)
		}
		log.WithError(err).Error("Failed to execute finalize transaction query")
		return storeError(err)
	}
	return nil
}

// GetTransactionsByAccountID retrieves all transactions touching an account, newest first.
func (r *TransactionRepository) GetTransactionsByAccountID(ctx context.Context, accountID string) ([]*model.Transaction, error) {
	log := logger.Log.WithField("account_id", accountID)
	log.Info("Executing query to get transactions by account ID")

	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE source_account_id = $1 OR target_account_id = $1
		ORDER BY created_at DESC`

	rows, err := executorFor(ctx, r.DB).QueryContext(ctx, query, accountID)
	if err != nil {
		log.WithError(err).Error("Failed to execute query for transactions by account ID")
		return nil, storeError(err)
	}
	defer rows.Close()

	var transactions []*model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			log.WithError(err).Error("Failed to scan transaction row")
			return nil, storeError(err)
		}
		transactions = append(transactions, t)
	}
	return transactions, storeError(rows.Err())
}

var _ ITransactionRepository = (*TransactionRepository)(nil)
