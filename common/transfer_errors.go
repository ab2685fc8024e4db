package common

import (
	"errors"
	"net/http"
)

var (
	ErrAccountNotFound       = errors.New("account not found")
	ErrSameAccount           = errors.New("cannot transfer money to the same account")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrConcurrencyConflict   = errors.New("concurrent modification detected")
	ErrLockTimeout           = errors.New("timed out waiting for lock")
	ErrCurrencyExchange      = errors.New("currency exchange failed")
	ErrRequestConflict       = errors.New("request id already used with a different payload")
	ErrUnexpectedStore       = errors.New("unexpected store error")
	ErrInvalidAmount         = errors.New("amount must be positive with at most 4 decimal places")
	ErrInvalidMode           = errors.New("unknown concurrency mode")
	ErrInvalidRequest        = errors.New("request id is required")
	ErrTransactionNotFound   = errors.New("transaction not found")
	ErrTransactionFinalized  = errors.New("transaction already finalized")
	ErrTransactionInProgress = errors.New("transaction is still in progress")
)

// Result codes recorded on transactions. Every kind that can end up in a
// FAILED record has its own code so the kind can be recovered on replay.
const (
	CodeSuccess             = http.StatusCreated
	CodeAccountNotFound     = http.StatusNotFound
	CodeSameAccount         = http.StatusBadRequest
	CodeInsufficientBalance = http.StatusUnprocessableEntity
	CodeCurrencyExchange    = http.StatusBadGateway
)

var recordedKinds = map[int]error{
	CodeAccountNotFound:     ErrAccountNotFound,
	CodeSameAccount:         ErrSameAccount,
	CodeInsufficientBalance: ErrInsufficientBalance,
	CodeCurrencyExchange:    ErrCurrencyExchange,
}

// ResultCode classifies err into an HTTP-like status code.
func ResultCode(err error) int {
	var failure *TransferFailure
	switch {
	case err == nil:
		return CodeSuccess
	case errors.As(err, &failure):
		return failure.Code
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrTransactionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrSameAccount), errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidMode), errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrInsufficientBalance):
		return CodeInsufficientBalance
	case errors.Is(err, ErrCurrencyExchange):
		return CodeCurrencyExchange
	case errors.Is(err, ErrConcurrencyConflict), errors.Is(err, ErrRequestConflict),
		errors.Is(err, ErrTransactionInProgress):
		return http.StatusConflict
	case errors.Is(err, ErrLockTimeout):
		return http.StatusLocked
	default:
		return http.StatusInternalServerError
	}
}

// IsRetryable reports whether the fetch+execute step may be attempted again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict) || errors.Is(err, ErrLockTimeout)
}

// IsRecordable reports whether err is a business outcome that is stored as a
// FAILED transaction. Retryable, store and context errors leave the request
// IN_PROGRESS so that a resubmission can still complete it.
func IsRecordable(err error) bool {
	for _, kind := range recordedKinds {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// TransferFailure is the error handed to callers for a failed transfer. The
// first caller and every replay see the same Code and Message.
type TransferFailure struct {
	Code    int
	Message string
	kind    error
}

func (e *TransferFailure) Error() string {
	return e.Message
}

func (e *TransferFailure) Unwrap() error {
	return e.kind
}

// NewTransferFailure wraps the error that made a transfer fail.
func NewTransferFailure(err error) *TransferFailure {
	code := ResultCode(err)
	kind := err
	if recorded, ok := recordedKinds[code]; ok && errors.Is(err, recorded) {
		kind = recorded
	}
	return &TransferFailure{
		Code:    code,
		Message: err.Error(),
		kind:    kind,
	}
}

// FailureFromRecord rebuilds the failure stored on a FAILED transaction.
func FailureFromRecord(code int, message string) *TransferFailure {
	kind, ok := recordedKinds[code]
	if !ok {
		kind = ErrUnexpectedStore
	}
	return &TransferFailure{Code: code, Message: message, kind: kind}
}
