package service

import (
	"context"
	"encoding/json"
	"errors"
	"go-bank-transfers/logger"
	"go-bank-transfers/model"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ICacheClient is the subset of the Redis client the services use.
type ICacheClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

const transactionKeyPrefix = "transaction:"

// TransactionCache is a write-through cache of terminal transactions. Only
// SUCCESS and FAILED records are stored or served, so a cache hit can never
// hide a record that has since become terminal. A nil cache is a no-op.
type TransactionCache struct {
	client ICacheClient
	ttl    time.Duration
}

func NewTransactionCache(client ICacheClient, ttl time.Duration) *TransactionCache {
	return &TransactionCache{client: client, ttl: ttl}
}

func (c *TransactionCache) Get(ctx context.Context, id string) (*model.Transaction, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}

	raw, err := c.client.Get(ctx, transactionKeyPrefix+id).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Log.WithField("transaction_id", id).WithError(err).Warn("Transaction cache read failed")
		}
		return nil, false
	}

	var txn model.Transaction
	if err := json.Unmarshal(raw, &txn); err != nil || !txn.Status.IsTerminal() {
		return nil, false
	}
	return &txn, true
}

func (c *TransactionCache) Set(ctx context.Context, txn *model.Transaction) {
	if c == nil || c.client == nil || txn == nil || !txn.Status.IsTerminal() {
		return
	}

	data, err := json.Marshal(txn)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, transactionKeyPrefix+txn.ID, data, c.ttl).Err(); err != nil {
		logger.Log.WithFields(logrus.Fields{
			"transaction_id": txn.ID,
			"status":         txn.Status,
		}).WithError(err).Warn("Transaction cache write failed")
	}
}
