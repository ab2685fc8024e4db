package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	StatusInProgress TransactionStatus = "IN_PROGRESS"
	StatusSuccess    TransactionStatus = "SUCCESS"
	StatusFailed     TransactionStatus = "FAILED"
)

// IsTerminal reports whether the status can never change again.
func (s TransactionStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Transaction is the durable outcome of a transfer request. Its ID is the
// caller-supplied request id.
type Transaction struct {
	ID              string            `json:"id"`
	SourceAccountID string            `json:"source_account_id"`
	TargetAccountID string            `json:"target_account_id"`
	Amount          decimal.Decimal   `json:"amount"`
	ConvertedAmount decimal.Decimal   `json:"converted_amount"`
	Currency        string            `json:"currency"`
	Status          TransactionStatus `json:"status"`
	Message         string            `json:"message"`
	ResultCode      int               `json:"result_code"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// NewInProgressTransaction builds the marker stored on first sight of a request id.
func NewInProgressTransaction(req TransferRequest) *Transaction {
	return &Transaction{
		ID:              req.RequestID,
		SourceAccountID: req.SourceAccountID,
		TargetAccountID: req.TargetAccountID,
		Amount:          req.Amount,
		Status:          StatusInProgress,
	}
}

// NewSuccessTransaction builds the terminal record of an applied transfer.
// credited is the amount received by the target, in currency.
func NewSuccessTransaction(req TransferRequest, credited decimal.Decimal, currency string, code int, message string) *Transaction {
	return &Transaction{
		ID:              req.RequestID,
		SourceAccountID: req.SourceAccountID,
		TargetAccountID: req.TargetAccountID,
		Amount:          req.Amount,
		ConvertedAmount: credited,
		Currency:        currency,
		Status:          StatusSuccess,
		Message:         message,
		ResultCode:      code,
	}
}

// NewFailedTransaction builds the terminal record for a request that failed.
func NewFailedTransaction(req TransferRequest, code int, message string) *Transaction {
	return &Transaction{
		ID:              req.RequestID,
		SourceAccountID: req.SourceAccountID,
		TargetAccountID: req.TargetAccountID,
		Amount:          req.Amount,
		Status:          StatusFailed,
		Message:         message,
		ResultCode:      code,
	}
}

// Fingerprint returns the idempotency key of the payload this record was created for.
func (t *Transaction) Fingerprint() string {
	return Fingerprint(t.SourceAccountID, t.TargetAccountID, t.Amount)
}

// MatchesRequest reports whether req carries the same payload as the one
// this transaction was recorded for.
func (t *Transaction) MatchesRequest(req TransferRequest) bool {
	return t.Fingerprint() == req.Fingerprint()
}

func (t *Transaction) Clone() *Transaction {
	c := *t
	return &c
}
