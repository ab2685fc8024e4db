package service

import (
	"context"
	"errors"
	"go-bank-transfers/common"
	"go-bank-transfers/model"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestAccountService_CreateAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		repo := new(MockAccountRepository)
		svc := NewAccountService(repo)

		repo.On("CreateAccount", ctx, mock.MatchedBy(func(a *model.Account) bool {
			return a.ID != "" && a.Currency == "EUR" && a.Balance.Equal(dec("100"))
		})).Return(nil).Once()

		account, err := svc.CreateAccount(ctx, model.CreateAccountRequest{Currency: "eur", InitialBalance: dec("100")})

		assert.NoError(t, err)
		assert.NotEmpty(t, account.ID)
		assert.Equal(t, "EUR", account.Currency)
		repo.AssertExpectations(t)
	})

	t.Run("negative initial balance", func(t *testing.T) {
		repo := new(MockAccountRepository)
		svc := NewAccountService(repo)

		_, err := svc.CreateAccount(ctx, model.CreateAccountRequest{Currency: "EUR", InitialBalance: dec("-1")})

		assert.ErrorIs(t, err, common.ErrInvalidAmount)
		repo.AssertNotCalled(t, "CreateAccount", mock.Anything, mock.Anything)
	})

	t.Run("initial balance with more than four decimal places", func(t *testing.T) {
		repo := new(MockAccountRepository)
		svc := NewAccountService(repo)

		_, err := svc.CreateAccount(ctx, model.CreateAccountRequest{Currency: "EUR", InitialBalance: dec("10.00001")})

		assert.ErrorIs(t, err, common.ErrInvalidAmount)
		repo.AssertNotCalled(t, "CreateAccount", mock.Anything, mock.Anything)
	})

	t.Run("repository failure", func(t *testing.T) {
		repo := new(MockAccountRepository)
		svc := NewAccountService(repo)
		dbErr := errors.New("db down")

		repo.On("CreateAccount", ctx, mock.Anything).Return(dbErr).Once()

		_, err := svc.CreateAccount(ctx, model.CreateAccountRequest{Currency: "EUR"})
		assert.Equal(t, dbErr, err)
	})
}

func TestAccountService_DepositToAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		repo := new(MockAccountRepository)
		svc := NewAccountService(repo)
		updated := &model.Account{ID: "acc-1", Balance: dec("150"), Currency: "EUR", Version: 1}

		repo.On("DepositToAccount", ctx, "acc-1", dec("50")).Return(updated, nil).Once()

		account, err := svc.DepositToAccount(ctx, "acc-1", dec("50"))
		assert.NoError(t, err)
		assert.Equal(t, updated, account)
		repo.AssertExpectations(t)
	})

	t.Run("non-positive amount", func(t *testing.T) {
		repo := new(MockAccountRepository)
		svc := NewAccountService(repo)

		for _, amount := range []string{"0", "-10", "0.00001"} {
			_, err := svc.DepositToAccount(ctx, "acc-1", dec(amount))
			assert.ErrorIs(t, err, common.ErrInvalidAmount)
		}
		repo.AssertNotCalled(t, "DepositToAccount", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("account not found", func(t *testing.T) {
		repo := new(MockAccountRepository)
		svc := NewAccountService(repo)

		repo.On("DepositToAccount", ctx, "ghost", dec("5")).Return(nil, common.ErrAccountNotFound).Once()

		_, err := svc.DepositToAccount(ctx, "ghost", dec("5"))
		assert.ErrorIs(t, err, common.ErrAccountNotFound)
	})
}
