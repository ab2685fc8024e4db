package service

import (
	"context"
	"go-bank-transfers/common"
	"go-bank-transfers/logger"
	"go-bank-transfers/model"
	"go-bank-transfers/repository"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type AccountService struct {
	repo repository.IAccountRepository
}

func NewAccountService(repo repository.IAccountRepository) *AccountService {
	return &AccountService{repo: repo}
}

// CreateAccount opens an account with a generated id.
func (s *AccountService) CreateAccount(ctx context.Context, req model.CreateAccountRequest) (*model.Account, error) {
	if req.InitialBalance.IsNegative() || !model.HasValidScale(req.InitialBalance) {
		return nil, common.ErrInvalidAmount
	}

	account := &model.Account{
		ID:       uuid.NewString(),
		Balance:  req.InitialBalance,
		Currency: strings.ToUpper(req.Currency),
	}
	if err := s.repo.CreateAccount(ctx, account); err != nil {
		return nil, err
	}

	logger.Log.WithFields(logrus.Fields{
		"account_id": account.ID,
		"currency":   account.Currency,
	}).Info("Account created")
	return account, nil
}

func (s *AccountService) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	return s.repo.GetAccountByID(ctx, id)
}

func (s *AccountService) GetAllAccounts(ctx context.Context) ([]*model.Account, error) {
	return s.repo.GetAllAccounts(ctx)
}

// DepositToAccount credits funds coming from outside the system.
func (s *AccountService) DepositToAccount(ctx context.Context, id string, amount decimal.Decimal) (*model.Account, error) {
	if !amount.IsPositive() || !model.HasValidScale(amount) {
		return nil, common.ErrInvalidAmount
	}
	return s.repo.DepositToAccount(ctx, id, amount)
}
