package repository

import (
	"context"
	"database/sql"
	"fmt"
	"go-bank-transfers/logger"
	"go-bank-transfers/model"
	"time"

	"github.com/sirupsen/logrus"
)

// TxManager implements UnitOfWork on top of a postgres *sql.DB.
type TxManager struct {
	DB *sql.DB
	// LockTimeout bounds how long FOR UPDATE waits for a competing row lock.
	LockTimeout time.Duration
}

func NewTxManager(db *sql.DB, lockTimeout time.Duration) *TxManager {
	return &TxManager{DB: db, LockTimeout: lockTimeout}
}

func isolationFor(mode model.FetchMode) sql.IsolationLevel {
	if mode == model.FetchSerializable {
		return sql.LevelSerializable
	}
	return sql.LevelReadCommitted
}

// WithinTx begins a transaction with the isolation level mode requires. A
// call made while a transaction is already open on ctx joins it.
func (m *TxManager) WithinTx(ctx context.Context, mode model.FetchMode, fn func(ctx context.Context) error) error {
	if _, ok := txFrom(ctx); ok {
		return fn(ctx)
	}

	log := logger.Log.WithFields(logrus.Fields{
		"mode":      mode,
		"isolation": isolationFor(mode).String(),
	})

	tx, err := m.DB.BeginTx(ctx, &sql.TxOptions{Isolation: isolationFor(mode)})
	if err != nil {
		log.WithError(err).Error("Failed to begin transaction")
		return storeError(fmt.Errorf("could not begin transaction: %w", err))
	}
	defer tx.Rollback()

	if m.LockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", m.LockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			log.WithError(err).Error("Failed to set lock timeout")
			return storeError(fmt.Errorf("could not set lock timeout: %w", err))
		}
	}

	if err := fn(withTx(ctx, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		log.WithError(err).Error("Failed to commit transaction")
		return storeError(fmt.Errorf("could not commit transaction: %w", err))
	}
	return nil
}
