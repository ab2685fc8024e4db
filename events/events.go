// Package events announces finished transfers to other services.
package events

import (
	"context"
	"go-bank-transfers/model"
	"time"

	"github.com/shopspring/decimal"
)

const (
	TypeTransferCompleted = "TransferCompleted"
	TypeTransferFailed    = "TransferFailed"
)

type TransferEvent struct {
	Type            string          `json:"type"`
	TransactionID   string          `json:"transaction_id"`
	SourceAccountID string          `json:"source_account_id"`
	TargetAccountID string          `json:"target_account_id"`
	Amount          decimal.Decimal `json:"amount"`
	ConvertedAmount decimal.Decimal `json:"converted_amount"`
	Currency        string          `json:"currency,omitempty"`
	ResultCode      int             `json:"result_code"`
	Message         string          `json:"message,omitempty"`
	OccurredAt      time.Time       `json:"occurred_at"`
}

// NewTransferEvent describes a terminal transaction.
func NewTransferEvent(txn *model.Transaction) TransferEvent {
	eventType := TypeTransferCompleted
	if txn.Status == model.StatusFailed {
		eventType = TypeTransferFailed
	}
	return TransferEvent{
		Type:            eventType,
		TransactionID:   txn.ID,
		SourceAccountID: txn.SourceAccountID,
		TargetAccountID: txn.TargetAccountID,
		Amount:          txn.Amount,
		ConvertedAmount: txn.ConvertedAmount,
		Currency:        txn.Currency,
		ResultCode:      txn.ResultCode,
		Message:         txn.Message,
		OccurredAt:      txn.UpdatedAt,
	}
}

type Publisher interface {
	Publish(ctx context.Context, event TransferEvent) error
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, TransferEvent) error { return nil }
