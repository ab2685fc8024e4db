package service

import (
	"context"
	"go-bank-transfers/common"
	"go-bank-transfers/model"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*TransactionCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewTransactionCache(client, time.Hour), mr
}

func TestTransactionCache(t *testing.T) {
	ctx := context.Background()
	req := transferReq("req-1", "S", "T", "30", model.FetchPessimistic)

	t.Run("stores and serves terminal records", func(t *testing.T) {
		cache, mr := newTestCache(t)
		txn := model.NewSuccessTransaction(req, dec("33"), "USD", common.CodeSuccess, successMessage)

		cache.Set(ctx, txn)
		assert.True(t, mr.Exists("transaction:req-1"))
		assert.Equal(t, time.Hour, mr.TTL("transaction:req-1"))

		got, ok := cache.Get(ctx, "req-1")
		require.True(t, ok)
		assert.Equal(t, model.StatusSuccess, got.Status)
		assert.True(t, dec("33").Equal(got.ConvertedAmount))
		assert.True(t, got.MatchesRequest(req))
	})

	t.Run("never stores in-progress records", func(t *testing.T) {
		cache, mr := newTestCache(t)

		cache.Set(ctx, model.NewInProgressTransaction(req))
		assert.False(t, mr.Exists("transaction:req-1"))
	})

	t.Run("ignores non-terminal payloads", func(t *testing.T) {
		cache, mr := newTestCache(t)
		require.NoError(t, mr.Set("transaction:req-1", `{"id":"req-1","status":"IN_PROGRESS"}`))

		_, ok := cache.Get(ctx, "req-1")
		assert.False(t, ok)
	})

	t.Run("miss and outage fall through", func(t *testing.T) {
		cache, mr := newTestCache(t)

		_, ok := cache.Get(ctx, "req-1")
		assert.False(t, ok)

		mr.Close()
		_, ok = cache.Get(ctx, "req-1")
		assert.False(t, ok)
		cache.Set(ctx, model.NewFailedTransaction(req, common.CodeInsufficientBalance, "insufficient balance"))
	})

	t.Run("nil cache is a no-op", func(t *testing.T) {
		var cache *TransactionCache
		cache.Set(ctx, model.NewFailedTransaction(req, 422, "x"))
		_, ok := cache.Get(ctx, "req-1")
		assert.False(t, ok)
	})

	t.Run("coordinator replays from the cache", func(t *testing.T) {
		cache, _ := newTestCache(t)
		h := newHarness(t)
		h.seed(t, "S", "100", "EUR")
		h.seed(t, "T", "50", "EUR")
		h.coordinator.cache = cache

		first, err := h.coordinator.ProcessRequest(ctx, req)
		require.NoError(t, err)

		cached, ok := cache.Get(ctx, "req-1")
		require.True(t, ok)
		assert.Equal(t, first.ID, cached.ID)

		again, err := h.coordinator.ProcessRequest(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID)
		assert.True(t, first.Amount.Equal(again.Amount))
		assert.True(t, first.CreatedAt.Equal(again.CreatedAt))
		assert.True(t, dec("70").Equal(h.balance(t, "S")))
	})
}
