package service

import (
	"context"
	"go-bank-transfers/common"
	"go-bank-transfers/exchange"
	"go-bank-transfers/logger"
	"go-bank-transfers/model"
	"go-bank-transfers/repository"

	"github.com/sirupsen/logrus"
)

const successMessage = "transfer completed"

// ITransferExecutor applies one attempt of a transfer.
type ITransferExecutor interface {
	Execute(ctx context.Context, req model.TransferRequest) (*model.Transaction, error)
}

// TransferExecutor moves funds between a fetched pair of accounts and
// persists both accounts plus the SUCCESS record in one storage transaction.
type TransferExecutor struct {
	uow          repository.UnitOfWork
	accounts     repository.IAccountRepository
	transactions repository.ITransactionRepository
	converter    exchange.Converter
}

func NewTransferExecutor(uow repository.UnitOfWork, accounts repository.IAccountRepository,
	transactions repository.ITransactionRepository, converter exchange.Converter) *TransferExecutor {
	return &TransferExecutor{
		uow:          uow,
		accounts:     accounts,
		transactions: transactions,
		converter:    converter,
	}
}

func (e *TransferExecutor) Execute(ctx context.Context, req model.TransferRequest) (*model.Transaction, error) {
	log := logger.Log.WithFields(logrus.Fields{
		"request_id":        req.RequestID,
		"source_account_id": req.SourceAccountID,
		"target_account_id": req.TargetAccountID,
		"amount":            req.Amount.String(),
		"mode":              req.Mode,
	})

	var result *model.Transaction
	err := e.uow.WithinTx(ctx, req.Mode, func(ctx context.Context) error {
		source, target, err := e.accounts.GetPairForUpdate(ctx, req.SourceAccountID, req.TargetAccountID, req.Mode)
		if err != nil {
			return err
		}

		if err := ValidateTransfer(source, target, req.Amount); err != nil {
			return err
		}

		source.Balance = source.Balance.Sub(req.Amount)

		credited := req.Amount
		if source.Currency != target.Currency {
			credited, err = e.converter.Convert(ctx, req.Amount, source.Currency, target.Currency)
			if err != nil {
				return err
			}
		}

		target.Balance = target.Balance.Add(credited)

		if err := e.accounts.SaveAll(ctx, req.Mode, source, target); err != nil {
			return err
		}

		txn := model.NewSuccessTransaction(req, credited, target.Currency, common.CodeSuccess, successMessage)
		if err := e.transactions.Finalize(ctx, txn); err != nil {
			return err
		}
		result = txn
		return nil
	})
	if err != nil {
		log.WithError(err).Info("Transfer attempt did not complete")
		return nil, err
	}

	log.WithField("converted_amount", result.ConvertedAmount.String()).Info("Transfer applied")
	return result, nil
}

var _ ITransferExecutor = (*TransferExecutor)(nil)
