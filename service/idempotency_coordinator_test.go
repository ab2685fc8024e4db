package service

import (
	"context"
	"errors"
	"fmt"
	"go-bank-transfers/common"
	"go-bank-transfers/events"
	"go-bank-transfers/lock"
	"go-bank-transfers/model"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyCoordinator_Examples(t *testing.T) {
	ctx := context.Background()

	for _, mode := range allModes {
		t.Run(string(mode), func(t *testing.T) {
			t.Run("success is applied once and replayed", func(t *testing.T) {
				h := newHarness(t)
				h.seed(t, "S", "100", "EUR")
				h.seed(t, "T", "50", "EUR")

				first, err := h.coordinator.ProcessRequest(ctx, transferReq("req-1", "S", "T", "30", mode))
				require.NoError(t, err)
				assert.Equal(t, model.StatusSuccess, first.Status)
				assert.True(t, dec("70").Equal(h.balance(t, "S")))
				assert.True(t, dec("80").Equal(h.balance(t, "T")))

				again, err := h.coordinator.ProcessRequest(ctx, transferReq("req-1", "S", "T", "30.00", mode))
				require.NoError(t, err)
				assert.Equal(t, first, again)
				assert.True(t, dec("70").Equal(h.balance(t, "S")))
				assert.True(t, dec("80").Equal(h.balance(t, "T")))
				assert.Equal(t, 1, h.publisher.count())
			})

			t.Run("failure is recorded and replayed", func(t *testing.T) {
				h := newHarness(t)
				h.seed(t, "S", "100", "EUR")
				h.seed(t, "T", "50", "EUR")

				_, firstErr := h.coordinator.ProcessRequest(ctx, transferReq("req-1", "S", "T", "120", mode))
				require.Error(t, firstErr)
				assert.ErrorIs(t, firstErr, common.ErrInsufficientBalance)
				assert.Equal(t, common.CodeInsufficientBalance, common.ResultCode(firstErr))

				stored, err := h.store.GetByID(ctx, "req-1")
				require.NoError(t, err)
				assert.Equal(t, model.StatusFailed, stored.Status)
				assert.Equal(t, common.CodeInsufficientBalance, stored.ResultCode)

				_, againErr := h.coordinator.ProcessRequest(ctx, transferReq("req-1", "S", "T", "120", mode))
				assert.Equal(t, firstErr, againErr)

				_, conflictErr := h.coordinator.ProcessRequest(ctx, transferReq("req-1", "S", "T", "50", mode))
				assert.ErrorIs(t, conflictErr, common.ErrRequestConflict)
				assert.Equal(t, http.StatusConflict, common.ResultCode(conflictErr))

				assert.True(t, dec("100").Equal(h.balance(t, "S")))
				assert.True(t, dec("50").Equal(h.balance(t, "T")))
			})

			t.Run("different amount under a used id is a conflict", func(t *testing.T) {
				h := newHarness(t)
				h.seed(t, "S", "100", "EUR")
				h.seed(t, "T", "50", "EUR")

				_, err := h.coordinator.ProcessRequest(ctx, transferReq("req-1", "S", "T", "30", mode))
				require.NoError(t, err)

				_, err = h.coordinator.ProcessRequest(ctx, transferReq("req-1", "S", "T", "31", mode))
				assert.ErrorIs(t, err, common.ErrRequestConflict)
				assert.True(t, dec("70").Equal(h.balance(t, "S")))
			})

			t.Run("same account is recorded as failed", func(t *testing.T) {
				h := newHarness(t)
				h.seed(t, "A", "100", "EUR")

				_, err := h.coordinator.ProcessRequest(ctx, transferReq("req-1", "A", "A", "10", mode))
				assert.ErrorIs(t, err, common.ErrSameAccount)
				assert.Equal(t, common.CodeSameAccount, common.ResultCode(err))
				assert.True(t, dec("100").Equal(h.balance(t, "A")))

				stored, err := h.store.GetByID(ctx, "req-1")
				require.NoError(t, err)
				assert.Equal(t, model.StatusFailed, stored.Status)
			})

			t.Run("missing account is recorded as failed", func(t *testing.T) {
				h := newHarness(t)
				h.seed(t, "S", "100", "EUR")

				_, err := h.coordinator.ProcessRequest(ctx, transferReq("req-1", "S", "ghost", "10", mode))
				assert.ErrorIs(t, err, common.ErrAccountNotFound)
				assert.Equal(t, common.CodeAccountNotFound, common.ResultCode(err))

				_, again := h.coordinator.ProcessRequest(ctx, transferReq("req-1", "S", "ghost", "10", mode))
				assert.Equal(t, err, again)
			})
		})
	}
}

func TestIdempotencyCoordinator_ConcurrentDuplicates(t *testing.T) {
	const n = 25

	for _, mode := range allModes {
		t.Run(string(mode), func(t *testing.T) {
			h := newHarness(t)
			h.seed(t, "S", "100", "EUR")
			h.seed(t, "T", "50", "EUR")

			results := make([]*model.Transaction, n)
			errs := make([]error, n)
			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					results[i], errs[i] = h.coordinator.ProcessRequest(context.Background(), transferReq("req-1", "S", "T", "30", mode))
				}(i)
			}
			wg.Wait()

			for i := 0; i < n; i++ {
				require.NoError(t, errs[i])
				assert.Equal(t, results[0], results[i])
			}
			assert.True(t, dec("70").Equal(h.balance(t, "S")))
			assert.True(t, dec("80").Equal(h.balance(t, "T")))
			assert.Equal(t, 1, h.publisher.count())
		})
	}
}

func TestIdempotencyCoordinator_ConcurrentDistinctRequests(t *testing.T) {
	const n = 20

	for _, mode := range allModes {
		t.Run(string(mode), func(t *testing.T) {
			h := newHarness(t)
			h.seed(t, "S", "100", "EUR")
			h.seed(t, "T", "0", "EUR")

			var wg sync.WaitGroup
			var mu sync.Mutex
			succeeded := 0
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, err := h.coordinator.ProcessRequest(context.Background(),
						transferReq(fmt.Sprintf("req-%d", i), "S", "T", "1", mode))
					if err == nil {
						mu.Lock()
						succeeded++
						mu.Unlock()
					}
				}(i)
			}
			wg.Wait()

			moved := dec("100").Sub(h.balance(t, "S"))
			assert.True(t, moved.Equal(h.balance(t, "T")), "funds must be conserved")
			assert.Equal(t, int64(succeeded), moved.IntPart())
			assert.Greater(t, succeeded, 0)
		})
	}
}

func TestIdempotencyCoordinator_InputValidation(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "S", "100", "EUR")
	h.seed(t, "T", "50", "EUR")

	tests := []struct {
		name    string
		req     model.TransferRequest
		wantErr error
	}{
		{name: "empty request id", req: transferReq("", "S", "T", "10", model.FetchPessimistic), wantErr: common.ErrInvalidRequest},
		{name: "zero amount", req: transferReq("req-0", "S", "T", "0", model.FetchPessimistic), wantErr: common.ErrInvalidAmount},
		{name: "negative amount", req: transferReq("req-1", "S", "T", "-5", model.FetchPessimistic), wantErr: common.ErrInvalidAmount},
		{name: "more than four decimal places", req: transferReq("req-3", "S", "T", "1.23456", model.FetchPessimistic), wantErr: common.ErrInvalidAmount},
		{name: "unknown mode", req: transferReq("req-2", "S", "T", "10", model.FetchMode("EVENTUAL")), wantErr: common.ErrInvalidMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.coordinator.ProcessRequest(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, http.StatusBadRequest, common.ResultCode(err))

			if tt.req.RequestID != "" {
				_, err := h.store.GetByID(context.Background(), tt.req.RequestID)
				assert.ErrorIs(t, err, common.ErrTransactionNotFound)
			}
		})
	}
}

func TestIdempotencyCoordinator_AmountScale(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(t, "S", "100", "EUR")
	h.seed(t, "T", "50", "EUR")

	first, err := h.coordinator.ProcessRequest(ctx, transferReq("req-1", "S", "T", "1.23450000", model.FetchPessimistic))
	require.NoError(t, err)
	assert.True(t, dec("1.2345").Equal(first.Amount))
	assert.True(t, dec("98.7655").Equal(h.balance(t, "S")))

	replayed, err := h.coordinator.ProcessRequest(ctx, transferReq("req-1", "S", "T", "1.2345", model.FetchPessimistic))
	require.NoError(t, err)
	assert.Equal(t, first, replayed)
}

func newMockedCoordinator(t *testing.T, executor ITransferExecutor, retries int) (*IdempotencyCoordinator, *harness) {
	t.Helper()
	h := newHarness(t)
	c := NewIdempotencyCoordinator(h.store, executor, lock.NewLocalLocker(time.Second), nil, h.publisher,
		RetryPolicy{MaxRetries: retries, BaseDelay: time.Millisecond})
	return c, h
}

func TestIdempotencyCoordinator_Retry(t *testing.T) {
	ctx := context.Background()
	req := transferReq("req-1", "S", "T", "30", model.FetchOptimistic)

	t.Run("retries conflicts until the attempt succeeds", func(t *testing.T) {
		executor := new(MockTransferExecutor)
		c, _ := newMockedCoordinator(t, executor, 3)
		done := model.NewSuccessTransaction(req, req.Amount, "EUR", common.CodeSuccess, successMessage)

		executor.On("Execute", mock.Anything, req).Return(nil, common.ErrConcurrencyConflict).Twice()
		executor.On("Execute", mock.Anything, req).Return(done, nil).Once()

		txn, err := c.ProcessRequest(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, done, txn)
		executor.AssertNumberOfCalls(t, "Execute", 3)
	})

	t.Run("gives up after the bound and leaves the request open", func(t *testing.T) {
		executor := new(MockTransferExecutor)
		c, h := newMockedCoordinator(t, executor, 2)

		executor.On("Execute", mock.Anything, req).Return(nil, common.ErrLockTimeout)

		_, err := c.ProcessRequest(ctx, req)
		assert.ErrorIs(t, err, common.ErrLockTimeout)
		assert.Equal(t, http.StatusLocked, common.ResultCode(err))
		executor.AssertNumberOfCalls(t, "Execute", 3)

		stored, err := h.store.GetByID(ctx, "req-1")
		require.NoError(t, err)
		assert.Equal(t, model.StatusInProgress, stored.Status)
		assert.Equal(t, 0, h.publisher.count())
	})

	t.Run("business errors are not retried", func(t *testing.T) {
		executor := new(MockTransferExecutor)
		c, h := newMockedCoordinator(t, executor, 5)

		executor.On("Execute", mock.Anything, req).Return(nil, common.ErrInsufficientBalance).Once()

		_, err := c.ProcessRequest(ctx, req)
		assert.ErrorIs(t, err, common.ErrInsufficientBalance)
		executor.AssertNumberOfCalls(t, "Execute", 1)

		stored, err := h.store.GetByID(ctx, "req-1")
		require.NoError(t, err)
		assert.Equal(t, model.StatusFailed, stored.Status)
		require.Equal(t, 1, h.publisher.count())
		assert.Equal(t, events.TypeTransferFailed, h.publisher.events[0].Type)
	})

	t.Run("store errors are surfaced as-is", func(t *testing.T) {
		executor := new(MockTransferExecutor)
		c, h := newMockedCoordinator(t, executor, 5)
		storeErr := fmt.Errorf("%w: connection reset", common.ErrUnexpectedStore)

		executor.On("Execute", mock.Anything, req).Return(nil, storeErr).Once()

		_, err := c.ProcessRequest(ctx, req)
		assert.Equal(t, storeErr, err)

		stored, err := h.store.GetByID(ctx, "req-1")
		require.NoError(t, err)
		assert.Equal(t, model.StatusInProgress, stored.Status)
	})
}

func TestIdempotencyCoordinator_InProgressRecords(t *testing.T) {
	ctx := context.Background()

	t.Run("resubmission completes an abandoned request", func(t *testing.T) {
		h := newHarness(t)
		h.seed(t, "S", "100", "EUR")
		h.seed(t, "T", "50", "EUR")
		req := transferReq("req-1", "S", "T", "30", model.FetchPessimistic)
		_, err := h.store.InsertOrGet(ctx, model.NewInProgressTransaction(req))
		require.NoError(t, err)

		txn, err := h.coordinator.ProcessRequest(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, model.StatusSuccess, txn.Status)
		assert.True(t, dec("70").Equal(h.balance(t, "S")))
	})

	t.Run("different payload against an open request is a conflict", func(t *testing.T) {
		h := newHarness(t)
		h.seed(t, "S", "100", "EUR")
		h.seed(t, "T", "50", "EUR")
		_, err := h.store.InsertOrGet(ctx, model.NewInProgressTransaction(transferReq("req-1", "S", "T", "30", model.FetchPessimistic)))
		require.NoError(t, err)

		_, err = h.coordinator.ProcessRequest(ctx, transferReq("req-1", "S", "T", "40", model.FetchPessimistic))
		assert.ErrorIs(t, err, common.ErrRequestConflict)
		assert.True(t, dec("100").Equal(h.balance(t, "S")))
	})

	t.Run("a record finalized behind our back is replayed", func(t *testing.T) {
		executor := new(MockTransferExecutor)
		c, h := newMockedCoordinator(t, executor, 0)
		req := transferReq("req-1", "S", "T", "30", model.FetchPessimistic)
		winner := model.NewSuccessTransaction(req, req.Amount, "EUR", common.CodeSuccess, successMessage)

		executor.On("Execute", mock.Anything, req).Run(func(args mock.Arguments) {
			require.NoError(t, h.store.Finalize(context.Background(), winner.Clone()))
		}).Return(nil, common.ErrTransactionFinalized).Once()

		txn, err := c.ProcessRequest(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, winner.ID, txn.ID)
		assert.Equal(t, model.StatusSuccess, txn.Status)
	})
}

func TestIdempotencyCoordinator_LockTimeout(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "S", "100", "EUR")
	h.seed(t, "T", "50", "EUR")
	locker := lock.NewLocalLocker(20 * time.Millisecond)
	c := NewIdempotencyCoordinator(h.store, h.coordinator.executor, locker, nil, nil, RetryPolicy{})
	req := transferReq("req-1", "S", "T", "30", model.FetchPessimistic)

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = locker.WithLock(context.Background(), "req-1", func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	_, err := c.ProcessRequest(context.Background(), req)
	close(release)

	assert.True(t, errors.Is(err, common.ErrLockTimeout))
	assert.True(t, dec("100").Equal(h.balance(t, "S")))
}
