package service

import (
	"context"
	"go-bank-transfers/logger"
	"go-bank-transfers/model"
	"go-bank-transfers/repository"

	"github.com/sirupsen/logrus"
)

// TransferProcessor runs a transfer request idempotently.
type TransferProcessor interface {
	ProcessRequest(ctx context.Context, req model.TransferRequest) (*model.Transaction, error)
}

// TransactionService is the caller-facing side of transfers and their history.
type TransactionService struct {
	processor    TransferProcessor
	accounts     repository.IAccountRepository
	transactions repository.ITransactionRepository
	cache        *TransactionCache
	defaultMode  model.FetchMode
}

func NewTransactionService(processor TransferProcessor, accounts repository.IAccountRepository,
	transactions repository.ITransactionRepository, cache *TransactionCache, defaultMode model.FetchMode) *TransactionService {
	if !defaultMode.Valid() {
		defaultMode = model.FetchPessimistic
	}
	return &TransactionService{
		processor:    processor,
		accounts:     accounts,
		transactions: transactions,
		cache:        cache,
		defaultMode:  defaultMode,
	}
}

// Transfer submits req, filling in the default concurrency mode when the
// caller did not choose one.
func (s *TransactionService) Transfer(ctx context.Context, req model.TransferRequest) (*model.Transaction, error) {
	if req.Mode == "" {
		req.Mode = s.defaultMode
	}

	logger.Log.WithFields(logrus.Fields{
		"request_id":        req.RequestID,
		"source_account_id": req.SourceAccountID,
		"target_account_id": req.TargetAccountID,
		"amount":            req.Amount.String(),
		"mode":              req.Mode,
	}).Info("Processing transfer request")

	return s.processor.ProcessRequest(ctx, req)
}

// GetTransaction returns the stored record for a request id, in whatever
// state it is.
func (s *TransactionService) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	if cached, ok := s.cache.Get(ctx, id); ok {
		return cached, nil
	}
	txn, err := s.transactions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, txn)
	return txn, nil
}

// ListTransactionsForAccount returns the history of an account, newest first.
func (s *TransactionService) ListTransactionsForAccount(ctx context.Context, accountID string) ([]*model.Transaction, error) {
	if _, err := s.accounts.GetAccountByID(ctx, accountID); err != nil {
		return nil, err
	}
	return s.transactions.GetTransactionsByAccountID(ctx, accountID)
}
