package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResultCode(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{nil, http.StatusCreated},
		{fmt.Errorf("%w: acc-1", ErrAccountNotFound), http.StatusNotFound},
		{ErrSameAccount, http.StatusBadRequest},
		{ErrInsufficientBalance, http.StatusUnprocessableEntity},
		{ErrCurrencyExchange, http.StatusBadGateway},
		{ErrConcurrencyConflict, http.StatusConflict},
		{ErrRequestConflict, http.StatusConflict},
		{ErrLockTimeout, http.StatusLocked},
		{ErrUnexpectedStore, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.code, ResultCode(c.err), "%v", c.err)
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("save: %w", ErrConcurrencyConflict)))
	assert.True(t, IsRetryable(ErrLockTimeout))
	assert.False(t, IsRetryable(ErrInsufficientBalance))
	assert.False(t, IsRetryable(context.DeadlineExceeded))
}

func TestIsRecordable(t *testing.T) {
	assert.True(t, IsRecordable(ErrInsufficientBalance))
	assert.True(t, IsRecordable(fmt.Errorf("%w: EUR->XXX", ErrCurrencyExchange)))
	assert.False(t, IsRecordable(ErrLockTimeout))
	assert.False(t, IsRecordable(ErrUnexpectedStore))
	assert.False(t, IsRecordable(context.Canceled))
}

func TestTransferFailure_ReplayMatchesFirstFailure(t *testing.T) {
	original := fmt.Errorf("%w: account acc-1 has 100, requested 120", ErrInsufficientBalance)

	first := NewTransferFailure(original)
	replayed := FailureFromRecord(first.Code, first.Message)

	assert.Equal(t, first.Error(), replayed.Error())
	assert.Equal(t, first.Code, replayed.Code)
	assert.ErrorIs(t, first, ErrInsufficientBalance)
	assert.ErrorIs(t, replayed, ErrInsufficientBalance)
	assert.Equal(t, http.StatusUnprocessableEntity, ResultCode(replayed))
	assert.Equal(t, first, replayed)
}
