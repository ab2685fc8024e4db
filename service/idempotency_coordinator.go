package service

import (
	"context"
	"errors"
	"fmt"
	"go-bank-transfers/common"
	"go-bank-transfers/events"
	"go-bank-transfers/lock"
	"go-bank-transfers/logger"
	"go-bank-transfers/model"
	"go-bank-transfers/repository"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// RetryPolicy bounds the internal retry of conflicting or lock-timed-out
// attempts. MaxRetries counts attempts after the first one.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.MaxElapsedTime = 0
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval <= 0 {
		b.MaxInterval = time.Second
	}

	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// IdempotencyCoordinator is the entry point for transfer requests. For any
// request id it runs the executor at most once and hands every caller the
// same outcome.
type IdempotencyCoordinator struct {
	transactions repository.ITransactionRepository
	executor     ITransferExecutor
	locker       lock.Locker
	cache        *TransactionCache
	publisher    events.Publisher
	retry        RetryPolicy
}

func NewIdempotencyCoordinator(transactions repository.ITransactionRepository, executor ITransferExecutor,
	locker lock.Locker, cache *TransactionCache, publisher events.Publisher, retry RetryPolicy) *IdempotencyCoordinator {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &IdempotencyCoordinator{
		transactions: transactions,
		executor:     executor,
		locker:       locker,
		cache:        cache,
		publisher:    publisher,
		retry:        retry,
	}
}

func validateRequest(req model.TransferRequest) error {
	if req.RequestID == "" {
		return common.ErrInvalidRequest
	}
	if !req.Amount.IsPositive() {
		return common.ErrInvalidAmount
	}
	if !model.HasValidScale(req.Amount) {
		return fmt.Errorf("%w: more than %d decimal places", common.ErrInvalidAmount, model.AmountScale)
	}
	if !req.Mode.Valid() {
		return fmt.Errorf("%w: %q", common.ErrInvalidMode, req.Mode)
	}
	return nil
}

// ProcessRequest returns the Transaction of a successful transfer, or the
// transfer's failure. Invalid input is rejected without recording anything.
func (c *IdempotencyCoordinator) ProcessRequest(ctx context.Context, req model.TransferRequest) (*model.Transaction, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	stored, err := c.lookupTerminal(ctx, req.RequestID)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		return c.replay(stored, req)
	}

	var result *model.Transaction
	err = c.locker.WithLock(ctx, req.RequestID, func(ctx context.Context) error {
		var err error
		result, err = c.processLocked(ctx, req)
		return err
	})
	return result, err
}

// lookupTerminal returns the terminal record for id, or nil if the request
// has not finished yet.
func (c *IdempotencyCoordinator) lookupTerminal(ctx context.Context, id string) (*model.Transaction, error) {
	if cached, ok := c.cache.Get(ctx, id); ok {
		return cached, nil
	}

	stored, err := c.transactions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrTransactionNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !stored.Status.IsTerminal() {
		return nil, nil
	}
	c.cache.Set(ctx, stored)
	return stored, nil
}

func (c *IdempotencyCoordinator) processLocked(ctx context.Context, req model.TransferRequest) (*model.Transaction, error) {
	log := logger.Log.WithFields(logrus.Fields{
		"request_id": req.RequestID,
		"mode":       req.Mode,
	})

	existing, err := c.transactions.InsertOrGet(ctx, model.NewInProgressTransaction(req))
	if err != nil {
		log.WithError(err).Error("Failed to record request")
		return nil, err
	}
	if existing.Status.IsTerminal() {
		c.cache.Set(ctx, existing)
		return c.replay(existing, req)
	}
	if !existing.MatchesRequest(req) {
		log.Warn("Request id reused with a different payload")
		return nil, fmt.Errorf("%w: %s", common.ErrRequestConflict, req.RequestID)
	}

	txn, err := c.executeWithRetry(ctx, req)
	switch {
	case err == nil:
		c.completed(ctx, txn)
		return txn, nil

	case errors.Is(err, common.ErrTransactionFinalized):
		return c.replayStored(ctx, req)

	case common.IsRecordable(err):
		failure := common.NewTransferFailure(err)
		record := model.NewFailedTransaction(req, failure.Code, failure.Message)
		if ferr := c.transactions.Finalize(ctx, record); ferr != nil {
			if errors.Is(ferr, common.ErrTransactionFinalized) {
				return c.replayStored(ctx, req)
			}
			log.WithError(ferr).Error("Failed to record transfer failure")
			return nil, ferr
		}
		log.WithFields(logrus.Fields{"result_code": failure.Code}).Info("Transfer failed and was recorded")
		c.completed(ctx, record)
		return nil, failure

	default:
		// Left IN_PROGRESS so a resubmission can still complete the request.
		log.WithError(err).Warn("Transfer not completed")
		return nil, err
	}
}

func (c *IdempotencyCoordinator) executeWithRetry(ctx context.Context, req model.TransferRequest) (*model.Transaction, error) {
	var txn *model.Transaction
	attempt := 0

	op := func() error {
		attempt++
		var err error
		txn, err = c.executor.Execute(ctx, req)
		if err == nil {
			return nil
		}
		if common.IsRetryable(err) {
			logger.Log.WithFields(logrus.Fields{
				"request_id": req.RequestID,
				"attempt":    attempt,
			}).WithError(err).Warn("Transfer attempt conflicted, retrying")
			return err
		}
		return backoff.Permanent(err)
	}

	if err := backoff.Retry(op, c.retry.backOff(ctx)); err != nil {
		return nil, err
	}
	return txn, nil
}

func (c *IdempotencyCoordinator) completed(ctx context.Context, txn *model.Transaction) {
	c.cache.Set(ctx, txn)
	if err := c.publisher.Publish(ctx, events.NewTransferEvent(txn)); err != nil {
		logger.Log.WithField("transaction_id", txn.ID).WithError(err).Warn("Failed to publish transfer event")
	}
}

func (c *IdempotencyCoordinator) replayStored(ctx context.Context, req model.TransferRequest) (*model.Transaction, error) {
	stored, err := c.transactions.GetByID(ctx, req.RequestID)
	if err != nil {
		return nil, err
	}
	c.cache.Set(ctx, stored)
	return c.replay(stored, req)
}

// replay hands back the outcome recorded for a terminal transaction.
func (c *IdempotencyCoordinator) replay(stored *model.Transaction, req model.TransferRequest) (*model.Transaction, error) {
	if !stored.MatchesRequest(req) {
		return nil, fmt.Errorf("%w: %s", common.ErrRequestConflict, req.RequestID)
	}
	switch stored.Status {
	case model.StatusFailed:
		return nil, common.FailureFromRecord(stored.ResultCode, stored.Message)
	case model.StatusSuccess:
		return stored, nil
	default:
		return nil, fmt.Errorf("%w: %s", common.ErrTransactionInProgress, req.RequestID)
	}
}
