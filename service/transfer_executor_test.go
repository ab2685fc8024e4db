package service

import (
	"context"
	"errors"
	"go-bank-transfers/common"
	"go-bank-transfers/model"
	"go-bank-transfers/repository"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingConverter struct{}

func (failingConverter) Convert(context.Context, decimal.Decimal, string, string) (decimal.Decimal, error) {
	return decimal.Zero, common.ErrCurrencyExchange
}

func TestTransferExecutor_Execute(t *testing.T) {
	ctx := context.Background()

	for _, mode := range allModes {
		t.Run(string(mode), func(t *testing.T) {
			t.Run("moves funds and records success", func(t *testing.T) {
				h := newHarness(t)
				h.seed(t, "S", "100", "EUR")
				h.seed(t, "T", "50", "EUR")

				txn, err := h.coordinator.executor.Execute(ctx, transferReq("req-1", "S", "T", "30", mode))
				require.NoError(t, err)

				assert.Equal(t, model.StatusSuccess, txn.Status)
				assert.Equal(t, common.CodeSuccess, txn.ResultCode)
				assert.Equal(t, "EUR", txn.Currency)
				assert.True(t, dec("70").Equal(h.balance(t, "S")))
				assert.True(t, dec("80").Equal(h.balance(t, "T")))

				stored, err := h.store.GetByID(ctx, "req-1")
				require.NoError(t, err)
				assert.Equal(t, txn, stored)
			})

			t.Run("converts across currencies", func(t *testing.T) {
				h := newHarness(t)
				h.seed(t, "S", "100", "EUR")
				h.seed(t, "T", "0", "USD")

				txn, err := h.coordinator.executor.Execute(ctx, transferReq("req-1", "S", "T", "30", mode))
				require.NoError(t, err)

				assert.Equal(t, "USD", txn.Currency)
				assert.True(t, dec("33").Equal(txn.ConvertedAmount))
				assert.True(t, dec("70").Equal(h.balance(t, "S")))
				assert.True(t, dec("33").Equal(h.balance(t, "T")))
			})

			t.Run("insufficient balance leaves balances untouched", func(t *testing.T) {
				h := newHarness(t)
				h.seed(t, "S", "100", "EUR")
				h.seed(t, "T", "50", "EUR")

				_, err := h.coordinator.executor.Execute(ctx, transferReq("req-1", "S", "T", "120", mode))
				assert.ErrorIs(t, err, common.ErrInsufficientBalance)
				assert.True(t, dec("100").Equal(h.balance(t, "S")))
				assert.True(t, dec("50").Equal(h.balance(t, "T")))
			})

			t.Run("same account", func(t *testing.T) {
				h := newHarness(t)
				h.seed(t, "S", "100", "EUR")

				_, err := h.coordinator.executor.Execute(ctx, transferReq("req-1", "S", "S", "10", mode))
				assert.ErrorIs(t, err, common.ErrSameAccount)
				assert.True(t, dec("100").Equal(h.balance(t, "S")))
			})

			t.Run("missing account", func(t *testing.T) {
				h := newHarness(t)
				h.seed(t, "S", "100", "EUR")

				_, err := h.coordinator.executor.Execute(ctx, transferReq("req-1", "S", "nope", "10", mode))
				assert.ErrorIs(t, err, common.ErrAccountNotFound)
			})

			t.Run("exchange failure discards the debit", func(t *testing.T) {
				store := repository.NewMemoryStore(time.Second)
				executor := NewTransferExecutor(store, store, store, failingConverter{})
				require.NoError(t, store.CreateAccount(ctx, &model.Account{ID: "S", Balance: dec("100"), Currency: "EUR"}))
				require.NoError(t, store.CreateAccount(ctx, &model.Account{ID: "T", Balance: dec("0"), Currency: "GBP"}))

				_, err := executor.Execute(ctx, transferReq("req-1", "S", "T", "10", mode))
				assert.True(t, errors.Is(err, common.ErrCurrencyExchange))

				acc, err := store.GetAccountByID(ctx, "S")
				require.NoError(t, err)
				assert.True(t, dec("100").Equal(acc.Balance))
				_, err = store.GetByID(ctx, "req-1")
				assert.ErrorIs(t, err, common.ErrTransactionNotFound)
			})
		})
	}

	t.Run("refuses to overwrite a terminal record", func(t *testing.T) {
		h := newHarness(t)
		h.seed(t, "S", "100", "EUR")
		h.seed(t, "T", "50", "EUR")
		req := transferReq("req-1", "S", "T", "30", model.FetchPessimistic)

		_, err := h.coordinator.executor.Execute(ctx, req)
		require.NoError(t, err)

		_, err = h.coordinator.executor.Execute(ctx, req)
		assert.ErrorIs(t, err, common.ErrTransactionFinalized)
		assert.True(t, dec("70").Equal(h.balance(t, "S")))
	})
}
